package postgres

import (
	"io/fs"
	"os"
	"testing"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValues(t *testing.T) {
	for _, key := range []string{"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	var cfg Config
	require.NoError(t, cleanenv.ReadEnv(&cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, uint16(5433), cfg.Port)
	assert.Equal(t, "users", cfg.Username)
	assert.Equal(t, "2529", cfg.Password)
	assert.Equal(t, "users", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
}

func TestConfig_CustomValues(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "custom_host")
	t.Setenv("POSTGRES_PORT", "5434")
	t.Setenv("POSTGRES_USER", "custom_user")
	t.Setenv("POSTGRES_PASSWORD", "custom_pass")
	t.Setenv("POSTGRES_DB", "custom_db")

	var cfg Config
	require.NoError(t, cleanenv.ReadEnv(&cfg))

	assert.Equal(t, "custom_host", cfg.Host)
	assert.Equal(t, uint16(5434), cfg.Port)
	assert.Equal(t, "custom_user", cfg.Username)
	assert.Equal(t, "custom_pass", cfg.Password)
	assert.Equal(t, "custom_db", cfg.Database)
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, Username: "u", Password: "p@ss", Database: "cloud", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/cloud?sslmode=disable", cfg.DSN("postgres"))
	assert.Equal(t, "pgx5://u:p%40ss@db:5432/cloud?sslmode=disable", cfg.DSN("pgx5"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_init.up.sql")
	assert.Contains(t, names, "000001_init.down.sql")
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloudsync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory, optionally with a config/local.env.
func inTempDir(t *testing.T, localEnv string) {
	t.Helper()
	td := t.TempDir()
	if localEnv != "" {
		cfgDir := filepath.Join(td, "config")
		require.NoError(t, os.Mkdir(cfgDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "local.env"), []byte(localEnv), 0o644))
	}
	t.Chdir(td)
}

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestNew_FromLocalEnv(t *testing.T) {
	unsetenv(t, "JWT_TOKEN", "POSTGRES_PORT", "REDIS_PORT", "HTTP_PORT", "GC_INTERVAL")
	inTempDir(t, `POSTGRES_HOST=localhost
POSTGRES_PORT=5433
POSTGRES_USER=users
POSTGRES_PASSWORD=2529
POSTGRES_DB=users

JWT_TOKEN=very_very_secret_key

HTTP_PORT=9090
GC_INTERVAL=30s

REDIS_HOST=localhost
REDIS_PORT=6380
REDIS_PASSWORD=
REDIS_DB=0
`)

	cfg, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, uint16(5433), cfg.Postgres.Port)
	assert.Equal(t, "users", cfg.Postgres.Username)
	assert.Equal(t, "very_very_secret_key", cfg.JWTSecret)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.GC.Interval)
	assert.Equal(t, "6380", cfg.Redis.Port)
	assert.Equal(t, 0, cfg.Redis.Db)
}

func TestNew_EnvironmentOnly(t *testing.T) {
	inTempDir(t, "")
	t.Setenv("JWT_TOKEN", "another_long_secret")
	t.Setenv("STORAGE_DEFAULT_QUOTA", "104857600")

	cfg, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, int64(100<<20), cfg.Storage.DefaultQuota)
	assert.Equal(t, int64(1<<30), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, 3, cfg.Storage.Upload.UploadRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Storage.Upload.RetryBackoff)
	assert.Equal(t, time.Hour, cfg.GC.ReservationTTL)
	assert.Equal(t, "50051", cfg.GRPCHealthPort)
	assert.Equal(t, "localhost:9000", cfg.MinIO.MinioEndpoint)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "short secret", env: map[string]string{"JWT_TOKEN": "short"}},
		{name: "zero quota", env: map[string]string{"JWT_TOKEN": "very_very_secret_key", "STORAGE_DEFAULT_QUOTA": "0"}},
		{name: "bad duration", env: map[string]string{"JWT_TOKEN": "very_very_secret_key", "GC_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t, "")
			unsetenv(t, "JWT_TOKEN", "STORAGE_DEFAULT_QUOTA", "GC_INTERVAL")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.New()
			assert.Error(t, err)
		})
	}
}

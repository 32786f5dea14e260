package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"cloudsync/internal/MinIO"
	"cloudsync/internal/service/fileService"
	"cloudsync/internal/service/gcService"
	"cloudsync/pkg/database/postgres"
	"cloudsync/pkg/database/redis"

	"github.com/ilyakaznacheev/cleanenv"
)

// LocalEnvFile is read when present; the process environment overrides it.
const LocalEnvFile = "./config/local.env"

const minSecretLength = 16

type StorageConfig struct {
	DefaultQuota   int64 `env:"STORAGE_DEFAULT_QUOTA" env-default:"10737418240"`
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" env-default:"1073741824"`
	Upload         fileService.Config
}

type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" env-default:"8080"`
	GRPCHealthPort  string        `env:"GRPC_HEALTH_PORT" env-default:"50051"`
	JWTSecret       string        `env:"JWT_TOKEN" env-required:"true"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	TokenCacheSize  int           `env:"TOKEN_CACHE_SIZE" env-default:"10000"`
	BcryptCost      int           `env:"BCRYPT_COST" env-default:"10"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	Storage  StorageConfig
	GC       gcService.Config
	Postgres postgres.Config
	Redis    redis.RedisConfig
	MinIO    MinIO.Config
}

func New() (*Config, error) {
	var cfg Config
	var err error
	if _, statErr := os.Stat(LocalEnvFile); statErr == nil {
		err = cleanenv.ReadConfig(LocalEnvFile, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case len(c.JWTSecret) < minSecretLength:
		return fmt.Errorf("JWT_TOKEN must be at least %d characters", minSecretLength)
	case c.Storage.DefaultQuota <= 0:
		return errors.New("STORAGE_DEFAULT_QUOTA must be positive")
	case c.Storage.MaxUploadBytes <= 0:
		return errors.New("HTTP_MAX_UPLOAD_BYTES must be positive")
	case c.GC.Interval <= 0 || c.GC.ReservationTTL <= 0:
		return errors.New("GC_INTERVAL and GC_RESERVATION_TTL must be positive")
	}
	return nil
}

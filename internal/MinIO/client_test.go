package MinIO

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	for _, key := range []string{"MINIO_ENDPOINT", "MINIO_BUCKET_NAME", "MINIO_USE_SSL", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	var cfg Config
	require.NoError(t, cleanenv.ReadEnv(&cfg))
	assert.Equal(t, "localhost:9000", cfg.MinioEndpoint)
	assert.Equal(t, "storage", cfg.BucketName)
	assert.False(t, cfg.MinioUseSSL)
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"wrapped", fmt.Errorf("stat: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"missing bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, false},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

package logger_test

import (
	"context"
	"testing"

	"cloudsync/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetLogger_FallsBackToNop(t *testing.T) {
	l := logger.GetLogger(context.Background())
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("nothing is listening", zap.Int("n", 1)) })
}

func TestNew_StoresLoggerInContext(t *testing.T) {
	ctx, err := logger.New(context.Background(), "warn")
	require.NoError(t, err)

	l := logger.GetLogger(ctx)
	assert.Same(t, l, logger.GetLogger(ctx))
	assert.NotNil(t, l.With(zap.String("component", "test")))
}

func TestWithLogger(t *testing.T) {
	nop := logger.NewNop()
	ctx := logger.WithLogger(context.Background(), nop)
	assert.Same(t, nop, logger.GetLogger(ctx))
}

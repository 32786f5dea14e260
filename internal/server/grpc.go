package server

import (
	"context"
	"time"

	"cloudsync/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthServer returns a gRPC server exposing the standard health service.
func NewHealthServer() (*grpc.Server, *health.Server) {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth keeps the overall health status in line with checks until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, checks Checks, interval time.Duration) {
	log := logger.GetLogger(ctx)
	update := func() {
		failures := checks.Run(ctx)
		status := healthpb.HealthCheckResponse_SERVING
		if len(failures) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn("dependencies unavailable", zap.Any("failures", failures))
		}
		hs.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}

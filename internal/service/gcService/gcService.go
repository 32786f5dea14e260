// Package gcService removes blobs whose file records are gone and expires upload
// reservations that were never committed or released.
package gcService

import (
	"context"
	"sync"
	"time"

	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/repository/gcRepo"
	"cloudsync/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_gc_runs_total",
		Help: "Completed garbage collection passes.",
	})
	gcBlobsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_gc_blobs_removed_total",
		Help: "Blobs removed from the blob store after their records were deleted.",
	})
	gcBlobFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_gc_blob_failures_total",
		Help: "Failed blob removals; the blob stays queued.",
	})
	gcReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_gc_reservations_expired_total",
		Help: "Upload reservations released because the upload never finished.",
	})
)

type Queue interface {
	Queued(ctx context.Context, limit int) ([]gcRepo.QueuedBlob, error)
	Dequeue(ctx context.Context, keys []string) error
	MarkFailed(ctx context.Context, key string) error
	StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]fileInfo.Reservation, error)
	Expire(ctx context.Context, res fileInfo.Reservation) (bool, error)
}

type BlobRemover interface {
	DeleteFile(ctx context.Context, key string) error
}

type Config struct {
	Interval       time.Duration `env:"GC_INTERVAL" env-default:"1m"`
	ReservationTTL time.Duration `env:"GC_RESERVATION_TTL" env-default:"1h"`
	BatchSize      int           `env:"GC_BATCH_SIZE" env-default:"100"`
}

// Report sums up one pass.
type Report struct {
	BlobsRemoved        int
	BlobsFailed         int
	ReservationsExpired int
	Duration            time.Duration
}

type GCService struct {
	queue Queue
	blobs BlobRemover
	cfg   Config
	now   func() time.Time

	mu sync.Mutex
}

func New(queue Queue, blobs BlobRemover, cfg Config) *GCService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &GCService{queue: queue, blobs: blobs, cfg: cfg, now: time.Now}
}

// Collect removes freshly deleted blobs right away. Keys it cannot remove stay queued
// for the next pass.
func (gc *GCService) Collect(ctx context.Context, keys []string) {
	removed, failed := gc.remove(ctx, keys)
	if failed > 0 {
		logger.GetLogger(ctx).Warn("blobs left for background collection", zap.Int("count", failed))
	}
	if err := gc.queue.Dequeue(ctx, removed); err != nil {
		logger.GetLogger(ctx).Warn("dequeue removed blobs", zap.Error(err))
	}
}

// Run performs a pass immediately and then every Interval until ctx is done.
func (gc *GCService) Run(ctx context.Context) {
	log := logger.GetLogger(ctx)
	log.Info("gc started", zap.Duration("interval", gc.cfg.Interval))

	gc.runLogged(ctx)
	ticker := time.NewTicker(gc.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("gc stopped")
			return
		case <-ticker.C:
			gc.runLogged(ctx)
		}
	}
}

func (gc *GCService) runLogged(ctx context.Context) {
	report, err := gc.RunOnce(ctx)
	log := logger.GetLogger(ctx)
	if err != nil {
		log.Error("gc pass failed", zap.Error(err))
		return
	}
	if report.BlobsRemoved+report.BlobsFailed+report.ReservationsExpired > 0 {
		log.Info("gc pass finished",
			zap.Int("blobs_removed", report.BlobsRemoved),
			zap.Int("blobs_failed", report.BlobsFailed),
			zap.Int("reservations_expired", report.ReservationsExpired),
			zap.Duration("duration", report.Duration))
	}
}

// RunOnce expires stale reservations and then drains the blob queue. Concurrent calls
// are serialised.
func (gc *GCService) RunOnce(ctx context.Context) (Report, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := gc.now()
	var report Report

	expired, err := gc.expireReservations(ctx)
	report.ReservationsExpired = expired
	if err != nil {
		return report, err
	}

	tried := make(map[string]struct{})
	for {
		batch, err := gc.queue.Queued(ctx, gc.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		keys := make([]string, 0, len(batch))
		for _, b := range batch {
			if _, ok := tried[b.StorageKey]; ok {
				continue
			}
			tried[b.StorageKey] = struct{}{}
			keys = append(keys, b.StorageKey)
		}
		// Every key in the batch was already tried in this pass.
		if len(keys) == 0 {
			break
		}
		removed, failed := gc.remove(ctx, keys)
		if err := gc.queue.Dequeue(ctx, removed); err != nil {
			return report, err
		}
		report.BlobsRemoved += len(removed)
		report.BlobsFailed += failed
		if len(batch) < gc.cfg.BatchSize {
			break
		}
	}

	report.Duration = gc.now().Sub(start)
	gcRunsTotal.Inc()
	return report, nil
}

func (gc *GCService) expireReservations(ctx context.Context) (int, error) {
	cutoff := gc.now().Add(-gc.cfg.ReservationTTL)
	stale, err := gc.queue.StaleReservations(ctx, cutoff, gc.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, res := range stale {
		dropped, err := gc.queue.Expire(ctx, res)
		if err != nil {
			return count, err
		}
		if dropped {
			count++
			gcReservationsExpiredTotal.Inc()
			logger.GetLogger(ctx).Info("upload reservation expired",
				zap.Int64("user_id", res.UserID),
				zap.String("reservation_id", res.ID.String()),
				zap.Int64("bytes", res.SizeBytes))
		}
	}
	return count, nil
}

func (gc *GCService) remove(ctx context.Context, keys []string) (removed []string, failed int) {
	for _, key := range keys {
		if err := gc.blobs.DeleteFile(ctx, key); err != nil {
			failed++
			gcBlobFailuresTotal.Inc()
			logger.GetLogger(ctx).Warn("blob removal failed", zap.String("key", key), zap.Error(err))
			if err := gc.queue.MarkFailed(ctx, key); err != nil {
				logger.GetLogger(ctx).Warn("mark blob failed", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		removed = append(removed, key)
		gcBlobsRemovedTotal.Inc()
	}
	return removed, failed
}

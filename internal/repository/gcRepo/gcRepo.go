package gcRepo

import (
	"context"
	"fmt"
	"time"

	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/repository"

	"github.com/jackc/pgx/v5"
)

// QueuedBlob is a blob whose record is gone but whose object may still be in the store.
type QueuedBlob struct {
	StorageKey string
	EnqueuedAt time.Time
	Attempts   int
}

type GCRepository struct {
	db repository.TxBeginner
}

func New(db repository.TxBeginner) *GCRepository {
	return &GCRepository{db: db}
}

// Queued returns up to limit queued blobs, least-tried first and then oldest first, so
// blobs that keep failing sink behind newer ones.
func (r *GCRepository) Queued(ctx context.Context, limit int) ([]QueuedBlob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT storage_key, enqueued_at, attempts FROM blob_gc
		 ORDER BY attempts, enqueued_at, storage_key LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query blob queue: %w", err)
	}
	blobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (QueuedBlob, error) {
		var b QueuedBlob
		err := row.Scan(&b.StorageKey, &b.EnqueuedAt, &b.Attempts)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan blob queue: %w", err)
	}
	return blobs, nil
}

// Dequeue forgets blobs that were removed from the store.
func (r *GCRepository) Dequeue(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM blob_gc WHERE storage_key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("dequeue blobs: %w", err)
	}
	return nil
}

func (r *GCRepository) MarkFailed(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `UPDATE blob_gc SET attempts = attempts + 1 WHERE storage_key = $1`, key)
	if err != nil {
		return fmt.Errorf("mark blob failed: %w", err)
	}
	return nil
}

// StaleReservations returns reservations created before cutoff.
func (r *GCRepository) StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]fileInfo.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, size_bytes, storage_key, created_at FROM upload_reservations
		 WHERE created_at < $1 ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (fileInfo.Reservation, error) {
		var res fileInfo.Reservation
		err := row.Scan(&res.ID, &res.UserID, &res.SizeBytes, &res.StorageKey, &res.CreatedAt)
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reservations: %w", err)
	}
	return out, nil
}

// Expire drops an abandoned reservation, returns its bytes to the owner and queues whatever
// part of the blob may have been written. It reports false if the upload committed or was
// released first.
func (r *GCRepository) Expire(ctx context.Context, res fileInfo.Reservation) (bool, error) {
	var dropped bool
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, res.UserID); err != nil {
			return err
		}
		var err error
		dropped, err = repository.DropReservation(ctx, tx, res.UserID, res.ID)
		if err != nil || !dropped {
			return err
		}
		return repository.EnqueueBlobs(ctx, tx, []string{res.StorageKey})
	})
	if err != nil {
		return false, err
	}
	return dropped, nil
}

// Package repository holds what the Postgres repositories share: the query interface that
// both the pool and a transaction satisfy, transaction helpers, error translation and the
// per-user ledger statements every tree mutation runs inside its own transaction.
package repository

import (
	"context"
	"errors"
	"fmt"

	"cloudsync/internal/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is implemented by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is implemented by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a read-committed transaction and commits if fn returns nil.
func WithTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithSnapshot runs fn in a read-only repeatable-read transaction, so every query inside
// sees the same point in time.
func WithSnapshot(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, fn)
}

// ConstraintMessages maps constraint names to client messages for unique violations.
type ConstraintMessages map[string]string

// MapError translates driver errors into domain errors. notFound is the message used for
// missing rows and dangling foreign keys.
func MapError(err error, notFound string, conflicts ConstraintMessages) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(notFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			if msg, ok := conflicts[pgErr.ConstraintName]; ok {
				return apperr.Conflict(msg)
			}
			return apperr.Conflict("resource already exists")
		case pgerrcode.ForeignKeyViolation:
			return apperr.NotFound(notFound)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation of the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}

// LockLedger takes the row lock on the user's ledger. Every transaction that changes the
// user's folder tree or usage takes it first, which serialises them per user.
func LockLedger(ctx context.Context, q DBTX, userID int64) error {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	return nil
}

// ReleaseUsage subtracts freed bytes from the ledger.
func ReleaseUsage(ctx context.Context, q DBTX, userID, bytes int64) error {
	if bytes == 0 {
		return nil
	}
	tag, err := q.Exec(ctx,
		`UPDATE users SET used_storage_bytes = used_storage_bytes - $2 WHERE id = $1`,
		userID, bytes)
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("release usage: user %d not found", userID)
	}
	return nil
}

// EnqueueBlobs records storage keys whose blobs must be removed from the blob store.
func EnqueueBlobs(ctx context.Context, q DBTX, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := q.Exec(ctx,
		`INSERT INTO blob_gc (storage_key) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`,
		keys)
	if err != nil {
		return fmt.Errorf("enqueue blobs: %w", err)
	}
	return nil
}

// DropReservation deletes an upload reservation and returns its bytes to the user's free
// space. The caller must hold the ledger lock. It reports false if the reservation is gone.
func DropReservation(ctx context.Context, q DBTX, userID int64, id uuid.UUID) (bool, error) {
	var size int64
	err := q.QueryRow(ctx,
		`DELETE FROM upload_reservations WHERE id = $1 AND user_id = $2 RETURNING size_bytes`,
		id, userID).Scan(&size)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("drop reservation: %w", err)
	}
	_, err = q.Exec(ctx,
		`UPDATE users SET reserved_storage_bytes = reserved_storage_bytes - $2 WHERE id = $1`,
		userID, size)
	if err != nil {
		return false, fmt.Errorf("return reserved bytes: %w", err)
	}
	return true, nil
}

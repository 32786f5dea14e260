package userRepo

import (
	"context"
	"fmt"

	"cloudsync/internal/model/user"
	"cloudsync/internal/repository"
)

const userColumns = `id, username, email, password_hash, max_storage_bytes,
	used_storage_bytes, reserved_storage_bytes, created_at`

var conflicts = repository.ConstraintMessages{
	"users_username_key":    "username already exists",
	"users_email_key":       "email already exists",
	"users_email_lower_idx": "email already exists",
}

type UserRepo struct {
	db repository.DBTX
}

func New(db repository.DBTX) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, username, email, passwordHash string, maxStorage int64) (*user.User, error) {
	query := `INSERT INTO users (username, email, password_hash, max_storage_bytes)
		VALUES ($1, $2, $3, $4) RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, username, email, passwordHash, maxStorage))
	if err != nil {
		return nil, repository.MapError(err, "user not found", conflicts)
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, repository.MapError(err, "user not found", nil)
	}
	return u, nil
}

// GetByLogin finds a user by exact username or case-insensitive e-mail.
func (r *UserRepo) GetByLogin(ctx context.Context, usernameOrEmail string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE username = $1 OR lower(email) = lower($1)
		ORDER BY (username = $1) DESC
		LIMIT 1`
	u, err := scanUser(r.db.QueryRow(ctx, query, usernameOrEmail))
	if err != nil {
		return nil, repository.MapError(err, "user not found", nil)
	}
	return u, nil
}

func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.MaxStorageBytes,
		&u.UsedStorageBytes, &u.ReservedStorageBytes, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

package refreshToken

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenRepo keeps one refresh token per user; saving a new one replaces the old.
type RefreshTokenRepo struct {
	Client *redis.Client
}

func New(client *redis.Client) *RefreshTokenRepo {
	return &RefreshTokenRepo{Client: client}
}

func (r *RefreshTokenRepo) buildKey(userID int64) string {
	return fmt.Sprintf("refresh:%d", userID)
}

func (r *RefreshTokenRepo) SaveToken(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if err := r.Client.Set(ctx, r.buildKey(userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) GetToken(ctx context.Context, userID int64) (string, error) {
	return r.Client.Get(ctx, r.buildKey(userID)).Result()
}

func (r *RefreshTokenRepo) DeleteToken(ctx context.Context, userID int64) error {
	return r.Client.Del(ctx, r.buildKey(userID)).Err()
}

// ValidateToken reports whether token is the user's current refresh token. A user with no
// stored token simply fails validation.
func (r *RefreshTokenRepo) ValidateToken(ctx context.Context, userID int64, token string) (bool, error) {
	storedToken, err := r.GetToken(ctx, userID)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load refresh token: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(storedToken), []byte(token)) == 1, nil
}

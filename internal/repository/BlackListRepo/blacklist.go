package BlackListRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlackListRepo remembers revoked access tokens until they would have expired anyway.
type BlackListRepo struct {
	Client *redis.Client
}

func NewBlackListRepo(client *redis.Client) *BlackListRepo {
	return &BlackListRepo{
		Client: client,
	}
}

func (r *BlackListRepo) buildKey(tokenID string) string {
	return fmt.Sprintf("blacklist:%s", tokenID)
}

// AddToken revokes tokenID; tokens already past expiresAt need no entry.
func (r *BlackListRepo) AddToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt).Round(time.Second)
	if ttl <= 0 {
		return nil
	}
	if err := r.Client.Set(ctx, r.buildKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (r *BlackListRepo) RemoveToken(ctx context.Context, tokenID string) error {
	return r.Client.Del(ctx, r.buildKey(tokenID)).Err()
}

func (r *BlackListRepo) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	_, err := r.Client.Get(ctx, r.buildKey(tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return true, nil
}

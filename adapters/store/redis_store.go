package store

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/defai/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) ports.Store {
	return &RedisStore{
		client: client,
		prefix: "defai:revoked:",
	}
}

// Revoke stores the grant ID with an expiry so the key disappears with the grant
func (s *RedisStore) Revoke(ctx context.Context, grantID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+grantID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	return nil
}

// IsRevoked checks if a grant is revoked in Redis
func (s *RedisStore) IsRevoked(ctx context.Context, grantID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+grantID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check grant revocation: %w", err)
	}
	return n > 0, nil
}

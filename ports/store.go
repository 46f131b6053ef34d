package ports

import (
	"context"
	"time"
)

// Store remembers revoked grant IDs until they would have expired anyway
type Store interface {
	Revoke(ctx context.Context, grantID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, grantID string) (bool, error)
}

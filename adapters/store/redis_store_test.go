package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRevocation(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	s := NewRedisStore(client)
	id := uuid.NewString()

	revoked, err := s.IsRevoked(ctx, id)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, id, time.Minute))
	revoked, err = s.IsRevoked(ctx, id)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.TTL(ctx, "defai:revoked:"+id).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	other := uuid.NewString()
	require.NoError(t, s.Revoke(ctx, other, 0))
	revoked, err = s.IsRevoked(ctx, other)
	require.NoError(t, err)
	assert.False(t, revoked)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRevocation(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore().(*MemoryStore)
	s.now = func() time.Time { return now }

	revoked, err := s.IsRevoked(ctx, "grant-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "grant-1", time.Minute))

	revoked, err = s.IsRevoked(ctx, "grant-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = s.IsRevoked(ctx, "grant-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryStoreKeepsLongerTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore().(*MemoryStore)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Revoke(ctx, "grant-1", time.Hour))
	require.NoError(t, s.Revoke(ctx, "grant-1", time.Second))

	now = now.Add(time.Minute)
	revoked, err := s.IsRevoked(ctx, "grant-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

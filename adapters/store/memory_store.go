package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/defai/ports"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Expired entries are dropped lazily on the next write.
type MemoryStore struct {
	revoked map[string]time.Time
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks a grant as revoked for ttl
func (s *MemoryStore) Revoke(ctx context.Context, grantID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, until := range s.revoked {
		if now.After(until) {
			delete(s.revoked, id)
		}
	}

	until := now.Add(ttl)
	if prev, ok := s.revoked[grantID]; ok && prev.After(until) {
		return nil
	}
	s.revoked[grantID] = until

	return nil
}

// IsRevoked checks if a grant is revoked
func (s *MemoryStore) IsRevoked(ctx context.Context, grantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revoked[grantID]
	if !ok {
		return false, nil
	}
	return !s.now().After(until), nil
}

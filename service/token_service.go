package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// minRevocationTTL keeps an invalidation record for grants that already
// expired, so clock skew cannot revive them
const minRevocationTTL = time.Hour

// TokenService issues and checks the gateway credentials handed out after a
// successful connect.
type TokenService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	ttl       time.Duration
	now       func() time.Time

	mu     sync.Mutex
	issued map[string]*core.AccessGrant // outstanding grants by id
}

// NewTokenService creates a token service issuing grants valid for ttl
func NewTokenService(tokenizer ports.Tokenizer, store ports.Store, ttl time.Duration) *TokenService {
	return &TokenService{
		tokenizer: tokenizer,
		store:     store,
		ttl:       ttl,
		now:       time.Now,
		issued:    make(map[string]*core.AccessGrant),
	}
}

// TTL returns the lifetime of issued tokens
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for a connected session
func (s *TokenService) Issue(session core.Session) (string, *core.AccessGrant, error) {
	if !session.Connected() {
		return "", nil, core.ErrNotAuthenticated
	}

	now := s.now()
	grant := &core.AccessGrant{
		ID:        uuid.New().String(),
		Address:   session.Address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	token, err := s.tokenizer.GrantToToken(grant)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create access token: %w", err)
	}

	s.mu.Lock()
	s.issued[grant.ID] = grant
	s.mu.Unlock()

	return token, grant, nil
}

// Validate parses token and checks that it was not revoked
func (s *TokenService) Validate(ctx context.Context, token string) (*core.AccessGrant, error) {
	grant, err := s.tokenizer.TokenToGrant(token)
	if err != nil {
		return nil, err
	}

	// The tokenizer checks expiry as well; this catches clock injection in tests
	if s.now().After(grant.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	revoked, err := s.store.IsRevoked(ctx, grant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if revoked {
		return nil, core.ErrTokenInvalidated
	}

	return grant, nil
}

// Revoke invalidates a single grant for the rest of its lifetime
func (s *TokenService) Revoke(ctx context.Context, grant *core.AccessGrant) error {
	remaining := grant.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		remaining = minRevocationTTL
	}

	if err := s.store.Revoke(ctx, grant.ID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	s.mu.Lock()
	delete(s.issued, grant.ID)
	s.mu.Unlock()

	return nil
}

// RevokeAll invalidates every grant issued for address
func (s *TokenService) RevokeAll(ctx context.Context, address string) error {
	s.mu.Lock()
	var grants []*core.AccessGrant
	for _, g := range s.issued {
		if g.Address == address {
			grants = append(grants, g)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, g := range grants {
		if err := s.Revoke(ctx, g); err != nil {
			errs = append(errs, err)
		}
	}
	if len(grants) > 0 {
		slog.Info("revoked session tokens", "address", address, "count", len(grants)-len(errs))
	}

	return errors.Join(errs...)
}

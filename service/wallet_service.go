package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// MessageCreateWalletErr is published when provisioning fails
const MessageCreateWalletErr = "Failed to create wallet. Please try again."

// WalletService provisions the custodial wallet and keeps its authorizer set
type WalletService struct {
	backend ports.Backend
	bus     *events.Bus

	mu          sync.RWMutex
	authorizers core.AuthorizerSet
}

// NewWalletService creates a wallet service with no authorizers known
func NewWalletService(backend ports.Backend, bus *events.Bus) *WalletService {
	return &WalletService{
		backend: backend,
		bus:     bus,
	}
}

// CreateWallet provisions a wallet for the session address, records its
// authorizers and refreshes the wallet info.
func (s *WalletService) CreateWallet(ctx context.Context, session core.Session) (*core.WalletCreated, error) {
	if !session.Connected() {
		return nil, core.ErrNotAuthenticated
	}

	created, err := s.backend.CreateWallet(ctx, session.Address)
	if err != nil {
		slog.Error("failed to create wallet", "address", session.Address, "error", err)
		events.Publish(s.bus, events.TopicSystem, core.SystemMessage{Text: MessageCreateWalletErr})
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	s.mu.Lock()
	s.authorizers = created.Authorizers()
	s.mu.Unlock()

	events.Publish(s.bus, events.TopicWalletCreated, *created)
	slog.Info("wallet created", "address", session.Address, "safe_address", created.SafeAddress)

	// Info failures are logged inside and do not fail provisioning
	_, _ = s.WalletInfo(ctx, session)

	return created, nil
}

// WalletInfo fetches the wallet bound to the session address and publishes
// it when the backend reports success.
func (s *WalletService) WalletInfo(ctx context.Context, session core.Session) (*core.WalletInfoResult, error) {
	if !session.Connected() {
		return nil, core.ErrNotAuthenticated
	}

	result, err := s.backend.WalletInfo(ctx, session.Address)
	if err != nil {
		slog.Error("failed to get wallet info", "address", session.Address, "error", err)
		return nil, fmt.Errorf("wallet info: %w", err)
	}

	if result.Status == "success" {
		events.Publish(s.bus, events.TopicWalletInfo, result.Data)
	}

	return result, nil
}

// Authorizers returns a copy of the known authorizer set
func (s *WalletService) Authorizers() core.AuthorizerSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorizers.Clone()
}

// Reset forgets the authorizers, used when the session ends
func (s *WalletService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizers = core.AuthorizerSet{}
}

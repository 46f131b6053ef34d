package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/layer-3/defai/ports"
)

// SessionAuthenticator owns the single session of this process and drives it
// through Disconnected, Connecting and Connected.
type SessionAuthenticator struct {
	provider ports.WalletProvider
	signer   *ChallengeSigner
	verifier *SignatureVerifier
	metrics  *metrics.Metrics
	now      func() time.Time

	mu         sync.Mutex
	session    core.Session
	generation uint64 // bumped by every Connect and Disconnect
	hooks      []func(core.Session)
}

// NewSessionAuthenticator creates an authenticator in the Disconnected state
func NewSessionAuthenticator(
	provider ports.WalletProvider,
	signer *ChallengeSigner,
	verifier *SignatureVerifier,
	m *metrics.Metrics,
) *SessionAuthenticator {
	return &SessionAuthenticator{
		provider: provider,
		signer:   signer,
		verifier: verifier,
		metrics:  m,
		now:      time.Now,
	}
}

// OnDisconnect registers fn to run after a Connected session ends,
// either through Disconnect or because Connect was called again.
// The session is already Disconnected when fn runs.
func (a *SessionAuthenticator) OnDisconnect(fn func(core.Session)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, fn)
}

// Session returns a snapshot of the current session
func (a *SessionAuthenticator) Session() core.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Connect proves possession of the provider's key and binds the recovered
// address to the session. A Connect while another is in flight fails with
// core.ErrAlreadyInProgress and leaves the provider untouched. A Connect
// while Connected disconnects first.
func (a *SessionAuthenticator) Connect(ctx context.Context) (core.Session, error) {
	a.mu.Lock()
	// Connected only exits to Disconnected
	for a.session.Connected() {
		a.mu.Unlock()
		slog.Info("ending connected session before reconnect")
		a.Disconnect()
		a.mu.Lock()
	}
	if a.session.Status == core.StatusConnecting {
		a.mu.Unlock()
		a.metrics.ConnectAttempt("in_progress")
		return core.Session{}, core.ErrAlreadyInProgress
	}
	a.generation++
	gen := a.generation
	a.session = core.Session{Status: core.StatusConnecting}
	a.mu.Unlock()

	payload, err := a.signer.Sign(ctx, a.provider)
	var address string
	if err == nil {
		address, err = a.verifier.Verify(payload.Message, payload.Signature, payload.Address)
	}

	a.mu.Lock()
	if a.generation != gen {
		// Disconnect ran while we were waiting on the wallet
		a.mu.Unlock()
		a.metrics.ConnectAttempt("aborted")
		return core.Session{}, core.ErrConnectAborted
	}
	if err != nil {
		a.session = core.Session{}
		a.mu.Unlock()
		a.metrics.ConnectAttempt(connectResult(err))
		slog.Warn("connect failed", "error", err)
		return core.Session{}, err
	}
	a.session = core.Session{
		Address:     address,
		Status:      core.StatusConnected,
		ConnectedAt: a.now(),
	}
	session := a.session
	a.mu.Unlock()

	a.metrics.ConnectAttempt("success")
	slog.Info("wallet connected", "address", address)

	return session, nil
}

// IsCurrent reports whether s is still the live Connected session, i.e. no
// Disconnect or Connect happened since s was returned.
func (a *SessionAuthenticator) IsCurrent(s core.Session) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return s.Connected() && a.session.Connected() &&
		a.session.Address == s.Address && a.session.ConnectedAt.Equal(s.ConnectedAt)
}

// Disconnect ends the session. It never fails and may be called in any state.
func (a *SessionAuthenticator) Disconnect() {
	a.mu.Lock()
	prev := a.session
	a.generation++
	a.session = core.Session{}
	hooks := append([]func(core.Session){}, a.hooks...)
	a.mu.Unlock()

	if prev.Connected() {
		slog.Info("wallet disconnected", "address", prev.Address)
		runHooks(hooks, prev)
	}
}

func runHooks(hooks []func(core.Session), s core.Session) {
	for _, fn := range hooks {
		fn(s)
	}
}

func connectResult(err error) string {
	switch {
	case errors.Is(err, core.ErrUserRejected):
		return "rejected"
	case errors.Is(err, core.ErrSignatureMismatch):
		return "mismatch"
	case errors.Is(err, core.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

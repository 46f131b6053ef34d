package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/internal/logger"
	"github.com/layer-3/defai/service"
)

// eventBuffer bounds what a slow /events client may lag behind
const eventBuffer = 64

// Services groups what the gateway exposes over HTTP
type Services struct {
	Auth         *service.SessionAuthenticator
	Tokens       *service.TokenService
	Orchestrator *service.AIRequestOrchestrator
	Wallets      *service.WalletService
	Authorizers  *service.AuthorizerService
	Bus          *events.Bus
}

// Handlers contains the HTTP handlers of the gateway
type Handlers struct {
	svc Services

	// Lifetime of background work started by requests
	baseCtx context.Context
	wg      sync.WaitGroup

	// Open /events streams, closed when the session ends
	streamsMu  sync.Mutex
	streams    map[uint64]context.CancelFunc
	nextStream uint64
}

// NewHandlers creates handlers; background AI requests run under ctx.
// Tokens, event streams and wallet state are dropped whenever the session ends.
func NewHandlers(ctx context.Context, svc Services) *Handlers {
	h := &Handlers{
		svc:     svc,
		baseCtx: ctx,
		streams: make(map[uint64]context.CancelFunc),
	}
	svc.Auth.OnDisconnect(h.sessionEnded)
	return h
}

func (h *Handlers) sessionEnded(s core.Session) {
	if err := h.svc.Tokens.RevokeAll(h.baseCtx, s.Address); err != nil {
		slog.Error("failed to revoke tokens", "address", s.Address, "error", err)
	}
	h.closeStreams()
	h.svc.Wallets.Reset()
}

func (h *Handlers) openStream(cancel context.CancelFunc) uint64 {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	h.nextStream++
	h.streams[h.nextStream] = cancel
	return h.nextStream
}

func (h *Handlers) releaseStream(id uint64) {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	delete(h.streams, id)
}

func (h *Handlers) closeStreams() {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	for id, cancel := range h.streams {
		cancel()
		delete(h.streams, id)
	}
}

// Wait blocks until background AI requests have finished
func (h *Handlers) Wait() {
	h.wg.Wait()
}

// Connect runs the wallet challenge and issues a gateway token
func (h *Handlers) Connect(c *gin.Context) {
	session, err := h.svc.Auth.Connect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	token, grant, err := h.issueToken(c.Request.Context(), session)
	if err != nil {
		if errors.Is(err, core.ErrConnectAborted) {
			writeError(c, err)
			return
		}
		logger.FromContext(c.Request.Context()).Error("failed to issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    session.Address,
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(grant.ExpiresAt.Sub(grant.IssuedAt).Seconds()),
	})
}

// issueToken creates a token for session unless the session ended meanwhile.
// The grant is tracked before the check, so a Disconnect racing with it
// revokes the grant through the session hook.
func (h *Handlers) issueToken(ctx context.Context, session core.Session) (string, *core.AccessGrant, error) {
	token, grant, err := h.svc.Tokens.Issue(session)
	if err != nil {
		return "", nil, err
	}

	if !h.svc.Auth.IsCurrent(session) {
		if err := h.svc.Tokens.Revoke(ctx, grant); err != nil {
			logger.FromContext(ctx).Error("failed to revoke stale token", "error", err)
		}
		return "", nil, core.ErrConnectAborted
	}

	return token, grant, nil
}

// Disconnect ends the session; it always succeeds
func (h *Handlers) Disconnect(c *gin.Context) {
	h.svc.Auth.Disconnect()
	c.JSON(http.StatusOK, gin.H{"status": core.StatusDisconnected.String()})
}

// Session returns the current session snapshot
func (h *Handlers) Session(c *gin.Context) {
	session := h.svc.Auth.Session()

	resp := gin.H{"status": session.Status.String()}
	if session.Connected() {
		resp["address"] = session.Address
		resp["connected_at"] = session.ConnectedAt
	}
	c.JSON(http.StatusOK, resp)
}

// AIRequest accepts a request and processes it in the background; results
// arrive on /events.
func (h *Handlers) AIRequest(c *gin.Context) {
	var req struct {
		Request string `json:"request" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session := sessionFrom(c)
	ctx := logger.WithRequestID(h.baseCtx, logger.RequestID(c.Request.Context()))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("ai request panicked", "panic", r)
			}
		}()

		if _, err := h.svc.Orchestrator.Send(ctx, session, req.Request); err != nil {
			logger.FromContext(ctx).Warn("ai request finished with error", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// CreateWallet provisions the custodial wallet
func (h *Handlers) CreateWallet(c *gin.Context) {
	created, err := h.svc.Wallets.CreateWallet(c.Request.Context(), sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// WalletInfo returns the wallet bound to the session
func (h *Handlers) WalletInfo(c *gin.Context) {
	info, err := h.svc.Wallets.WalletInfo(c.Request.Context(), sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Authorizers returns the authorizer addresses and their on-chain names
func (h *Handlers) Authorizers(c *gin.Context) {
	set := h.svc.Wallets.Authorizers()
	if !set.Complete() {
		writeError(c, core.ErrAuthorizersMissing)
		return
	}

	names, err := h.svc.Authorizers.Names(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"approve": gin.H{"address": *set.ApproveAuthorizer, "name": names.Approve},
		"silo":    gin.H{"address": *set.SiloAuthorizer, "name": names.Silo},
	})
}

// SetMaxAmount updates the silo authorizer limit and waits for the receipt
func (h *Handlers) SetMaxAmount(c *gin.Context) {
	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	outcome, err := h.svc.Authorizers.SetMaxAmount(c.Request.Context(), sessionFrom(c), req.Amount)
	if err != nil && !errors.Is(err, core.ErrTransactionUnresolved) {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if outcome.Status == core.TxUnknown {
		status = http.StatusAccepted
	}
	c.JSON(status, outcome)
}

// Events streams every bus notification to the session owner as
// server-sent events. The stream ends when the session does.
func (h *Handlers) Events(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	id := h.openStream(cancel)
	defer h.releaseStream(id)

	// The session may have ended between authentication and registration
	if !h.svc.Auth.IsCurrent(sessionFrom(c)) {
		writeError(c, core.ErrNotAuthenticated)
		return
	}

	ch := make(chan events.Event, eventBuffer)

	sub := h.svc.Bus.SubscribeAll(func(ev events.Event) {
		select {
		case ch <- ev:
		default:
			logger.FromContext(ctx).Warn("dropping notification for slow client", "topic", ev.Topic, "seq", ev.Seq)
		}
	})
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-ch:
			c.SSEvent(ev.Topic, ev)
			return true
		}
	})
}

// writeError maps error kinds to status codes
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "Internal error"

	switch {
	case errors.Is(err, core.ErrAlreadyInProgress):
		status, msg = http.StatusConflict, "Connect already in progress"
	case errors.Is(err, core.ErrConnectAborted):
		status, msg = http.StatusConflict, "Connect aborted"
	case errors.Is(err, core.ErrProviderUnavailable):
		status, msg = http.StatusServiceUnavailable, "Wallet provider unavailable"
	case errors.Is(err, core.ErrUserRejected):
		status, msg = http.StatusUnauthorized, "Request rejected in wallet"
	case errors.Is(err, core.ErrSignatureMismatch):
		status, msg = http.StatusUnauthorized, "Invalid signature"
	case errors.Is(err, core.ErrNotAuthenticated):
		status, msg = http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, core.ErrInvalidAmount):
		status, msg = http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, core.ErrAuthorizersMissing):
		status, msg = http.StatusConflict, "Wallet not provisioned"
	case errors.Is(err, core.ErrProviderError), errors.Is(err, core.ErrUnknownChain):
		status, msg = http.StatusBadGateway, "Wallet provider error"
	case errors.Is(err, core.ErrNetwork):
		status, msg = http.StatusBadGateway, "Backend unavailable"
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(status, gin.H{"error": msg})
}

package http

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/adapters/store"
	"github.com/layer-3/defai/adapters/tokenizer"
	"github.com/layer-3/defai/adapters/wallet"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
	"github.com/layer-3/defai/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBackend struct {
	mu       sync.Mutex
	requests []string
}

func (b *stubBackend) WalletInfo(_ context.Context, address string) (*core.WalletInfoResult, error) {
	return &core.WalletInfoResult{Status: "success", Data: core.WalletInfo{SafeAddress: "0xsafe", AgentAddress: address}}, nil
}

func (b *stubBackend) CreateWallet(context.Context, string) (*core.WalletCreated, error) {
	return &core.WalletCreated{SafeAddress: "0xsafe"}, nil
}

func (b *stubBackend) AIRequest(_ context.Context, _ string, request string) (core.AIReply, error) {
	b.mu.Lock()
	b.requests = append(b.requests, request)
	b.mu.Unlock()
	return core.PlainReply{Body: json.RawMessage(`{"response":"ok"}`)}, nil
}

type noReceipts struct{}

func (noReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

type gateway struct {
	router   *gin.Engine
	handlers *Handlers
	provider *wallet.KeyProvider
	bus      *events.Bus
	backend  *stubBackend
}

func newGateway(t *testing.T, limiter *RateLimiter) *gateway {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	provider := wallet.NewKeyProvider(key, 146, nil)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	bus := events.NewBus()
	backend := &stubBackend{}
	poller := service.NewTransactionStatusPoller(noReceipts{}, nil, service.WithMaxAttempts(1))
	wallets := service.NewWalletService(backend, bus)

	svc := Services{
		Auth:         service.NewSessionAuthenticator(provider, service.NewChallengeSigner(), service.NewSignatureVerifier(), nil),
		Tokens:       service.NewTokenService(tokenizer.NewJWTTokenizer(signKey), store.NewMemoryStore(), time.Hour),
		Orchestrator: service.NewAIRequestOrchestrator(backend, poller, bus, nil),
		Wallets:      wallets,
		Authorizers:  service.NewAuthorizerService(wallets, nil, provider, poller, ports.ChainParams{ChainID: 146}),
		Bus:          bus,
	}

	handlers := NewHandlers(context.Background(), svc)
	return &gateway{
		router:   SetupRouter(handlers, limiter, nil),
		handlers: handlers,
		provider: provider,
		bus:      bus,
		backend:  backend,
	}
}

func (g *gateway) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	return w
}

func (g *gateway) connect(t *testing.T) string {
	t.Helper()
	w := g.do(http.MethodPost, "/auth/connect", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Address   string `json:"address"`
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, g.provider.Address(), resp.Address)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	return resp.Token
}

func TestConnectAndSession(t *testing.T) {
	g := newGateway(t, nil)

	w := g.do(http.MethodGet, "/auth/session", "", "")
	assert.JSONEq(t, `{"status":"disconnected"}`, w.Body.String())

	token := g.connect(t)
	assert.NotEmpty(t, token)

	w = g.do(http.MethodGet, "/auth/session", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"connected"`)
	assert.Contains(t, w.Body.String(), g.provider.Address())
}

func TestConnectRejected(t *testing.T) {
	g := newGateway(t, nil)
	g.provider.RejectRequests(true)

	w := g.do(http.MethodPost, "/auth/connect", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Request rejected in wallet"}`, w.Body.String())
}

func TestTokenRejectedAfterDisconnect(t *testing.T) {
	g := newGateway(t, nil)
	token := g.connect(t)

	w := g.do(http.MethodGet, "/api/wallet/info", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"safe_address":"0xsafe"`)

	w = g.do(http.MethodPost, "/auth/disconnect", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = g.do(http.MethodGet, "/api/wallet/info", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Token revoked"}`, w.Body.String())

	// Disconnect again is harmless
	w = g.do(http.MethodPost, "/auth/disconnect", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	g := newGateway(t, nil)

	for _, header := range []string{"", "garbage"} {
		w := g.do(http.MethodPost, "/api/ai_request", header, `{"request":"hi"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/wallet/info", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAIRequestRunsInBackground(t *testing.T) {
	g := newGateway(t, nil)
	token := g.connect(t)

	got := make(chan core.AIResponse, 1)
	events.Subscribe(g.bus, events.TopicAIResponse, func(r core.AIResponse) { got <- r })

	w := g.do(http.MethodPost, "/api/ai_request", token, `{"request":"what is my balance"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case resp := <-got:
		assert.JSONEq(t, `{"response":"ok"}`, string(resp.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("no ai response published")
	}
	g.handlers.Wait()
	assert.Equal(t, []string{"what is my balance"}, g.backend.requests)

	w = g.do(http.MethodPost, "/api/ai_request", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizersRequireProvisioning(t *testing.T) {
	g := newGateway(t, nil)
	token := g.connect(t)

	w := g.do(http.MethodGet, "/api/authorizers", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = g.do(http.MethodPost, "/api/authorizers/max_amount", token, `{"amount":"1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = g.do(http.MethodPost, "/api/authorizers/max_amount", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := newGateway(t, NewRateLimiter(ctx, 1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, g.do(http.MethodGet, "/api/wallet/info", "", "").Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

// openEvents opens /events on srv and returns the response once streaming began
func openEvents(t *testing.T, ctx context.Context, srv *httptest.Server, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEventsRequireToken(t *testing.T) {
	g := newGateway(t, nil)
	srv := httptest.NewServer(g.router)
	defer srv.Close()

	token := g.connect(t)

	resp := openEvents(t, context.Background(), srv, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = openEvents(t, context.Background(), srv, "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Nobody listens, so wallet data published for the owner goes nowhere
	w := g.do(http.MethodGet, "/api/wallet/info", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, g.bus.Len())
}

func TestEventsStreamEndsWithSession(t *testing.T) {
	g := newGateway(t, nil)
	srv := httptest.NewServer(g.router)
	defer srv.Close()

	token := g.connect(t)
	resp := openEvents(t, context.Background(), srv, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return g.bus.Len() > 0 }, 2*time.Second, 5*time.Millisecond)

	w := g.do(http.MethodPost, "/auth/disconnect", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream still open after disconnect")
	}
	require.Eventually(t, func() bool { return g.bus.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	// The old token cannot reopen it
	resp = openEvents(t, context.Background(), srv, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNoTokenForEndedSession(t *testing.T) {
	g := newGateway(t, nil)

	session, err := g.handlers.svc.Auth.Connect(context.Background())
	require.NoError(t, err)
	g.handlers.svc.Auth.Disconnect()

	_, _, err = g.handlers.issueToken(context.Background(), session)
	assert.ErrorIs(t, err, core.ErrConnectAborted)

	// Reconnecting the same address does not revive anything issued above
	token := g.connect(t)
	w := g.do(http.MethodGet, "/api/wallet/info", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsStream(t *testing.T) {
	g := newGateway(t, nil)
	srv := httptest.NewServer(g.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp := openEvents(t, ctx, srv, g.connect(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return g.bus.Len() > 0 }, 2*time.Second, 5*time.Millisecond)

	events.Publish(g.bus, events.TopicSystem, core.SystemMessage{Text: "hello"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "event:system", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data:"))
	assert.Contains(t, lines[1], `"text":"hello"`)
	assert.Contains(t, lines[1], `"topic":"system"`)
}

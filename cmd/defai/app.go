package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/defai/adapters/backend"
	"github.com/layer-3/defai/adapters/chain"
	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/adapters/store"
	"github.com/layer-3/defai/adapters/tokenizer"
	"github.com/layer-3/defai/adapters/wallet"
	"github.com/layer-3/defai/internal/config"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/layer-3/defai/ports"
	"github.com/layer-3/defai/service"
	"github.com/redis/go-redis/v9"
)

// app holds the wired components shared by the serve and terminal commands
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	bus     *events.Bus

	auth         *service.SessionAuthenticator
	tokens       *service.TokenService
	orchestrator *service.AIRequestOrchestrator
	wallets      *service.WalletService
	authorizers  *service.AuthorizerService

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain: %w", err)
	}
	a.closers = append(a.closers, chainClient.Close)
	slog.Info("connected to chain", "chain_id", chainClient.ChainID())

	provider, err := newProvider(ctx, cfg, chainClient)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := provider.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}

	var (
		tokenStore = store.NewMemoryStore()
		busOpts    = []events.BusOption{events.WithMetrics(a.metrics)}
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = redisClient.Close() })

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		a.closers = append(a.closers, func() { _ = publisher.Close() })

		tokenStore = store.NewRedisStore(redisClient)
		busOpts = append(busOpts, events.WithMirror(events.NewWatermillPublisher(publisher)))
		slog.Info("using redis for token store and event mirror")
	}
	a.bus = events.NewBus(busOpts...)

	// Tokens only need to outlive the process, so the signing key is ephemeral
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	backendClient := backend.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	poller := service.NewTransactionStatusPoller(chainClient, a.metrics,
		service.WithMaxAttempts(cfg.PollMaxAttempts),
		service.WithInterval(cfg.PollInterval),
	)

	a.auth = service.NewSessionAuthenticator(provider, service.NewChallengeSigner(), service.NewSignatureVerifier(), a.metrics)
	a.tokens = service.NewTokenService(tokenizer.NewJWTTokenizer(signKey), tokenStore, cfg.TokenTTL)
	a.orchestrator = service.NewAIRequestOrchestrator(backendClient, poller, a.bus, a.metrics,
		service.WithUnresolvedNotice(cfg.NotifyUnresolved),
	)
	a.wallets = service.NewWalletService(backendClient, a.bus)
	a.authorizers = service.NewAuthorizerService(a.wallets, chainClient, provider, poller, ports.ChainParams{
		ChainID:        cfg.ChainID,
		Name:           cfg.ChainName,
		RPCURL:         cfg.RPCURL,
		CurrencyName:   cfg.ChainCurrency,
		CurrencySymbol: cfg.ChainCurrency,
		Decimals:       18,
	})

	return a, nil
}

// newProvider picks the wallet: a remote EIP-1193 endpoint, a local key, or none
func newProvider(ctx context.Context, cfg *config.Config, chainClient *chain.Client) (ports.WalletProvider, error) {
	switch {
	case cfg.WalletRPCURL != "":
		p, err := wallet.DialRPCProvider(ctx, cfg.WalletRPCURL)
		if err != nil {
			return nil, err
		}
		slog.Info("using remote wallet provider", "url", cfg.WalletRPCURL)
		return p, nil
	case cfg.WalletPrivateKey != "":
		p, err := wallet.NewKeyProviderFromHex(cfg.WalletPrivateKey, cfg.ChainID, chainClient)
		if err != nil {
			return nil, err
		}
		slog.Info("using local key wallet", "address", p.Address())
		return p, nil
	default:
		slog.Warn("no wallet provider configured, connect will fail")
		return nil, nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/defai/internal/config"
	"github.com/layer-3/defai/internal/logger"
	transport "github.com/layer-3/defai/transport/http"
	"github.com/layer-3/defai/transport/terminal"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cliApp := &cli.App{
		Name:  "defai",
		Usage: "wallet-authenticated gateway to the DeFAI assistant",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP gateway",
				Action: serve,
			},
			{
				Name:   "terminal",
				Usage:  "run the interactive terminal",
				Action: runTerminal,
			},
		},
		DefaultCommand: "serve",
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.InitWriter(logOut, cfg.LogFormat, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return newApp(ctx, cfg)
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)

	handlers := transport.NewHandlers(ctx, transport.Services{
		Auth:         a.auth,
		Tokens:       a.tokens,
		Orchestrator: a.orchestrator,
		Wallets:      a.wallets,
		Authorizers:  a.authorizers,
		Bus:          a.bus,
	})
	limiter := transport.NewRateLimiter(ctx, a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)

	server := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           transport.SetupRouter(handlers, limiter, a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting gateway", "addr", a.cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		handlers.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("gateway stopped")
	return nil
}

func runTerminal(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep logs off the terminal's own output
	a, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	term := terminal.New(os.Stdin, os.Stdout, a.auth, a.orchestrator, a.wallets, a.bus)
	return term.Run(ctx)
}

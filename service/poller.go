package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/layer-3/defai/ports"
)

const (
	DefaultMaxAttempts  = 30
	DefaultPollInterval = time.Second
)

type pollSettings struct {
	maxAttempts int
	interval    time.Duration
}

// PollOption adjusts the polling bound
type PollOption func(*pollSettings)

// WithMaxAttempts sets how many receipt queries are made at most
func WithMaxAttempts(n int) PollOption {
	return func(s *pollSettings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithInterval sets the wait between two queries
func WithInterval(d time.Duration) PollOption {
	return func(s *pollSettings) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// TransactionStatusPoller reconciles a transaction hash with its receipt
type TransactionStatusPoller struct {
	source   ports.ReceiptSource
	metrics  *metrics.Metrics
	defaults pollSettings
}

// NewTransactionStatusPoller creates a poller; opts replace the 30 x 1s default
func NewTransactionStatusPoller(source ports.ReceiptSource, m *metrics.Metrics, opts ...PollOption) *TransactionStatusPoller {
	p := &TransactionStatusPoller{
		source:  source,
		metrics: m,
		defaults: pollSettings{
			maxAttempts: DefaultMaxAttempts,
			interval:    DefaultPollInterval,
		},
	}
	for _, opt := range opts {
		opt(&p.defaults)
	}
	return p
}

// Poll queries the receipt until one is observed or the attempts run out.
// Query errors count as an attempt without a receipt. The wait only happens
// between attempts. A cancelled ctx ends polling with core.TxUnknown.
func (p *TransactionStatusPoller) Poll(ctx context.Context, txHash string, opts ...PollOption) core.TransactionOutcome {
	settings := p.defaults
	for _, opt := range opts {
		opt(&settings)
	}

	outcome := p.poll(ctx, common.HexToHash(txHash), settings)
	outcome.Hash = txHash
	p.metrics.PollOutcome(string(outcome.Status))

	return outcome
}

func (p *TransactionStatusPoller) poll(ctx context.Context, hash common.Hash, settings pollSettings) core.TransactionOutcome {
	log := slog.With("tx_hash", hash.Hex())

	for attempt := 1; attempt <= settings.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			log.Debug("polling cancelled", "attempt", attempt)
			break
		}

		p.metrics.ReceiptQuery()
		receipt, err := p.source.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return core.TransactionOutcome{Status: core.TxFailed}
			}
			return core.TransactionOutcome{Status: core.TxSuccess}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.Debug("receipt query failed", "attempt", attempt, "error", err)
		}

		if attempt == settings.maxAttempts {
			break
		}

		timer := time.NewTimer(settings.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	log.Info("transaction unresolved after polling", "max_attempts", settings.maxAttempts)
	return core.TransactionOutcome{Status: core.TxUnknown}
}

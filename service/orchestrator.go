package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/layer-3/defai/ports"
)

// Notification texts shown to the user
const (
	MessageTxSent       = "Transaction sent"
	MessageTxSuccess    = "Transaction successful"
	MessageTxFailed     = "Transaction failed (reverted)"
	MessageTxUnknown    = "Transaction status unknown (timed out)"
	MessageAIRequestErr = "Failed to process AI request. Please try again."
)

// AIRequestOrchestrator sends natural-language requests to the backend and
// follows any transaction the agent submits until it settles.
type AIRequestOrchestrator struct {
	backend ports.Backend
	poller  *TransactionStatusPoller
	bus     *events.Bus
	metrics *metrics.Metrics

	notifyUnresolved bool
}

// OrchestratorOption configures an AIRequestOrchestrator
type OrchestratorOption func(*AIRequestOrchestrator)

// WithUnresolvedNotice publishes a final notification when polling ends
// without a receipt. Off by default.
func WithUnresolvedNotice(on bool) OrchestratorOption {
	return func(o *AIRequestOrchestrator) { o.notifyUnresolved = on }
}

// NewAIRequestOrchestrator creates an orchestrator
func NewAIRequestOrchestrator(
	backend ports.Backend,
	poller *TransactionStatusPoller,
	bus *events.Bus,
	m *metrics.Metrics,
	opts ...OrchestratorOption,
) *AIRequestOrchestrator {
	o := &AIRequestOrchestrator{
		backend: backend,
		poller:  poller,
		bus:     bus,
		metrics: m,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send submits text on behalf of the connected session. Transaction replies
// block until polling finishes.
func (o *AIRequestOrchestrator) Send(ctx context.Context, session core.Session, text string) (core.AIOutcome, error) {
	if !session.Connected() {
		return core.AIOutcome{}, core.ErrNotAuthenticated
	}

	log := slog.With("address", session.Address)

	reply, err := o.backend.AIRequest(ctx, session.Address, text)
	if err == nil && reply == nil {
		err = fmt.Errorf("%w: empty reply", core.ErrNetwork)
	}
	if err != nil {
		if !errors.Is(err, core.ErrNetwork) {
			err = fmt.Errorf("%w: %w", core.ErrNetwork, err)
		}
		o.metrics.AIRequest("error")
		log.Error("ai request failed", "error", err)
		events.Publish(o.bus, events.TopicSystem, core.SystemMessage{Text: MessageAIRequestErr})
		return core.AIOutcome{}, fmt.Errorf("ai request: %w", err)
	}

	switch r := reply.(type) {
	case core.TransactionReply:
		o.metrics.AIRequest("transaction")
		outcome := o.follow(ctx, r.TxHash)
		return core.AIOutcome{Reply: r, Transaction: &outcome}, nil

	case core.PlainReply:
		o.metrics.AIRequest("plain")
		events.Publish(o.bus, events.TopicAIResponse, core.AIResponse{Body: r.Body})
		return core.AIOutcome{Reply: r}, nil

	default:
		o.metrics.AIRequest("error")
		events.Publish(o.bus, events.TopicSystem, core.SystemMessage{Text: MessageAIRequestErr})
		return core.AIOutcome{}, fmt.Errorf("ai request: %w: unexpected reply %T", core.ErrNetwork, reply)
	}
}

func (o *AIRequestOrchestrator) follow(ctx context.Context, txHash string) core.TransactionOutcome {
	events.Publish(o.bus, events.TopicAIResponse, core.AIResponse{
		Status:  string(core.TxPending),
		Message: MessageTxSent,
		TxHash:  txHash,
	})

	outcome := o.poller.Poll(ctx, txHash)

	switch outcome.Status {
	case core.TxSuccess:
		o.publishFinal(outcome, MessageTxSuccess)
	case core.TxFailed:
		o.publishFinal(outcome, MessageTxFailed)
	case core.TxUnknown:
		if o.notifyUnresolved {
			o.publishFinal(outcome, MessageTxUnknown)
		}
	}

	return outcome
}

func (o *AIRequestOrchestrator) publishFinal(outcome core.TransactionOutcome, message string) {
	events.Publish(o.bus, events.TopicAIResponse, core.AIResponse{
		Status:  string(outcome.Status),
		Message: message,
		TxHash:  outcome.Hash,
		Final:   true,
	})
}

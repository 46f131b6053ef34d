// Package terminal is a line-oriented front end for the assistant. It renders
// bus notifications and forwards typed lines to the AI orchestrator.
package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/layer-3/defai/adapters/events"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/service"
)

const (
	banner       = "DeFAI Terminal v1.0.0 initialized. Waiting for wallet connection..."
	fundReminder = "Please fund your safe_address (this is your main storage) and agent_address for gas, as this wallet will be used for on-chain operations."
	helpText     = "Commands: /connect /disconnect /create /info /help /quit. Anything else is sent to the assistant."
)

// Terminal reads commands from in and writes rendered notifications to out
type Terminal struct {
	in  io.Reader
	out io.Writer

	auth         *service.SessionAuthenticator
	orchestrator *service.AIRequestOrchestrator
	wallets      *service.WalletService
	bus          *events.Bus

	mu sync.Mutex // serialises writes to out
	wg sync.WaitGroup
}

// New creates a terminal
func New(
	in io.Reader,
	out io.Writer,
	auth *service.SessionAuthenticator,
	orchestrator *service.AIRequestOrchestrator,
	wallets *service.WalletService,
	bus *events.Bus,
) *Terminal {
	return &Terminal{
		in:           in,
		out:          out,
		auth:         auth,
		orchestrator: orchestrator,
		wallets:      wallets,
		bus:          bus,
	}
}

// Run processes input until /quit, end of input or ctx cancellation.
// In-flight AI requests are cancelled and awaited before it returns.
func (t *Terminal) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subs := []*events.Subscription{
		events.Subscribe(t.bus, events.TopicSystem, t.onSystem),
		events.Subscribe(t.bus, events.TopicAIResponse, t.onAIResponse),
		events.Subscribe(t.bus, events.TopicWalletCreated, t.onWalletCreated),
		events.Subscribe(t.bus, events.TopicWalletInfo, t.onWalletInfo),
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	t.println("system", banner)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	// Stop in-flight requests before waiting for them
	defer func() {
		cancel()
		t.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if quit := t.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (t *Terminal) handle(ctx context.Context, line string) bool {
	switch line {
	case "":
	case "/quit", "/exit":
		return true
	case "/help":
		t.println("system", helpText)
	case "/connect":
		session, err := t.auth.Connect(ctx)
		if err != nil {
			t.println("system", "Connect failed: "+describe(err))
			return false
		}
		t.println("system", "Connected: "+session.Address)
	case "/disconnect":
		t.auth.Disconnect()
		t.println("system", "Disconnected")
	case "/create":
		if _, err := t.wallets.CreateWallet(ctx, t.auth.Session()); errors.Is(err, core.ErrNotAuthenticated) {
			t.println("system", describe(err))
		}
	case "/info":
		if _, err := t.wallets.WalletInfo(ctx, t.auth.Session()); err != nil {
			t.println("system", "Wallet info unavailable: "+describe(err))
		}
	default:
		session := t.auth.Session()
		if !session.Connected() {
			t.println("system", describe(core.ErrNotAuthenticated))
			return false
		}
		t.println("user", line)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if _, err := t.orchestrator.Send(ctx, session, line); err != nil {
				slog.Debug("ai request failed", "error", err)
			}
		}()
	}
	return false
}

func (t *Terminal) onSystem(m core.SystemMessage) {
	t.println("system", m.Text)
}

func (t *Terminal) onAIResponse(r core.AIResponse) {
	switch {
	case r.TxHash != "" && r.Final:
		t.println("system", r.Message)
	case r.TxHash != "" && r.Status == string(core.TxPending):
		t.println("system", r.Message)
		t.println("response", "Transaction Hash: "+r.TxHash)
	case r.TxHash == "":
		t.println("response", formatBody(r.Body))
	}
}

func (t *Terminal) onWalletCreated(w core.WalletCreated) {
	t.println("system", "Wallet creation successful. Details:")
	t.println("response", formatValue(w))
	t.println("system", fundReminder)
}

func (t *Terminal) onWalletInfo(w core.WalletInfo) {
	t.println("system", "Wallet information retrieved:")
	t.println("response", formatValue(w))
}

func (t *Terminal) println(kind, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "[%s] %s\n", kind, text)
}

func describe(err error) string {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		return "Connect a wallet first (/connect)"
	case errors.Is(err, core.ErrUserRejected):
		return "request rejected in wallet"
	case errors.Is(err, core.ErrSignatureMismatch):
		return "signature does not match the wallet address"
	case errors.Is(err, core.ErrAlreadyInProgress):
		return "connect already in progress"
	default:
		return err.Error()
	}
}

func formatValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return formatBody(raw)
}

// formatBody renders a JSON object as key: "value" lines sorted by key;
// anything else is printed as is
func formatBody(body json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %q", k, fmt.Sprint(obj[k])))
	}
	return strings.Join(lines, "\n")
}

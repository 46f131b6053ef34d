package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// ChallengePrefix starts every challenge message; a unix-ms timestamp follows it
const ChallengePrefix = "Welcome to our app! Sign this message to verify your wallet ownership. Timestamp:"

// ChallengeSigner asks the wallet provider to sign a fresh challenge
type ChallengeSigner struct {
	now func() time.Time
}

// NewChallengeSigner creates a signer using the wall clock
func NewChallengeSigner() *ChallengeSigner {
	return &ChallengeSigner{now: time.Now}
}

// ChallengeMessage builds the exact string the wallet signs
func ChallengeMessage(ts int64) string {
	return fmt.Sprintf("%s %d", ChallengePrefix, ts)
}

// Sign obtains the claimed address from provider and a signature over a
// timestamped challenge. It does not touch session state.
func (s *ChallengeSigner) Sign(ctx context.Context, provider ports.WalletProvider) (core.ChallengePayload, error) {
	if provider == nil {
		return core.ChallengePayload{}, core.ErrProviderUnavailable
	}

	ts := s.now().UnixMilli()
	message := ChallengeMessage(ts)

	accounts, err := provider.Accounts(ctx)
	if err != nil {
		return core.ChallengePayload{}, providerFailure("request accounts", err)
	}
	if len(accounts) == 0 || accounts[0] == "" {
		return core.ChallengePayload{}, fmt.Errorf("request accounts: %w: no account exposed", core.ErrProviderError)
	}
	address := accounts[0]

	signature, err := provider.PersonalSign(ctx, message, address)
	if err != nil {
		return core.ChallengePayload{}, providerFailure("sign challenge", err)
	}

	return core.ChallengePayload{
		Address:   address,
		Message:   message,
		Signature: signature,
		Timestamp: ts,
	}, nil
}

// providerFailure keeps the specific kinds and files everything else under ErrProviderError
func providerFailure(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrUserRejected),
		errors.Is(err, core.ErrProviderUnavailable),
		errors.Is(err, core.ErrProviderError):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, core.ErrProviderError, err)
	}
}

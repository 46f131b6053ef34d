package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/layer-3/defai/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeSignerProducesVerifiablePayload(t *testing.T) {
	provider := newFakeProvider(t)
	signer := NewChallengeSigner()
	signer.now = func() time.Time { return time.UnixMilli(1700000000123) }

	payload, err := signer.Sign(context.Background(), provider)
	require.NoError(t, err)

	assert.Equal(t, provider.address(), payload.Address)
	assert.Equal(t, int64(1700000000123), payload.Timestamp)
	assert.Equal(t, ChallengePrefix+" 1700000000123", payload.Message)

	recovered, err := NewSignatureVerifier().Verify(payload.Message, payload.Signature, payload.Address)
	require.NoError(t, err)
	assert.Equal(t, payload.Address, recovered)
}

func TestChallengeSignerErrors(t *testing.T) {
	signer := NewChallengeSigner()

	t.Run("no provider", func(t *testing.T) {
		_, err := signer.Sign(context.Background(), nil)
		assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	})

	t.Run("rejected signature", func(t *testing.T) {
		provider := newFakeProvider(t)
		provider.signErr = core.ErrUserRejected

		_, err := signer.Sign(context.Background(), provider)
		assert.ErrorIs(t, err, core.ErrUserRejected)
		assert.NotErrorIs(t, err, core.ErrProviderError)
	})

	t.Run("accounts failure", func(t *testing.T) {
		provider := newFakeProvider(t)
		cause := errors.New("socket closed")
		provider.accountsErr = cause

		_, err := signer.Sign(context.Background(), provider)
		assert.ErrorIs(t, err, core.ErrProviderError)
		assert.ErrorIs(t, err, cause)
		assert.Zero(t, provider.signCalls.Load())
	})

	t.Run("no account", func(t *testing.T) {
		provider := newFakeProvider(t)
		provider.claimed = ""

		_, err := signer.Sign(context.Background(), provider)
		assert.ErrorIs(t, err, core.ErrProviderError)
	})
}

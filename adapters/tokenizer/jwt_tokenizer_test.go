package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/defai/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestGrantRoundTrip(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))
	now := time.Now().Truncate(time.Second)

	grant := &core.AccessGrant{
		ID:        uuid.New().String(),
		Address:   "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	token, err := tok.GrantToToken(grant)
	require.NoError(t, err)

	parsed, err := tok.TokenToGrant(token)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, parsed.ID)
	assert.Equal(t, grant.Address, parsed.Address)
	assert.True(t, grant.ExpiresAt.Equal(parsed.ExpiresAt))
}

func TestExpiredToken(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t))
	past := time.Now().Add(-2 * time.Hour)

	token, err := tok.GrantToToken(&core.AccessGrant{
		ID:        uuid.New().String(),
		Address:   "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		IssuedAt:  past,
		ExpiresAt: past.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = tok.TokenToGrant(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestTokenFromOtherKey(t *testing.T) {
	issuer := NewJWTTokenizer(newKey(t))
	verifier := NewJWTTokenizer(newKey(t))

	token, err := issuer.GrantToToken(&core.AccessGrant{
		ID:        uuid.New().String(),
		Address:   "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = verifier.TokenToGrant(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = verifier.TokenToGrant("not-a-token")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

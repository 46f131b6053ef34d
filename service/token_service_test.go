package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/defai/adapters/store"
	"github.com/layer-3/defai/adapters/tokenizer"
	"github.com/layer-3/defai/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewTokenService(tokenizer.NewJWTTokenizer(key), store.NewMemoryStore(), ttl)
}

func TestTokenIssueAndValidate(t *testing.T) {
	svc := newTokenService(t, time.Hour)

	token, grant, err := svc.Issue(connectedSession(testAddress))
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)
	assert.Equal(t, testAddress, grant.Address)

	got, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, got.ID)
	assert.Equal(t, testAddress, got.Address)
}

func TestTokenIssueRequiresConnectedSession(t *testing.T) {
	svc := newTokenService(t, time.Hour)

	_, _, err := svc.Issue(core.Session{Address: testAddress, Status: core.StatusConnecting})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestTokenRevokeAll(t *testing.T) {
	svc := newTokenService(t, time.Hour)
	ctx := context.Background()

	first, _, err := svc.Issue(connectedSession(testAddress))
	require.NoError(t, err)
	second, _, err := svc.Issue(connectedSession(testAddress))
	require.NoError(t, err)
	other, _, err := svc.Issue(connectedSession("0x9999999999999999999999999999999999999999"))
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, testAddress))

	_, err = svc.Validate(ctx, first)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	_, err = svc.Validate(ctx, second)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	_, err = svc.Validate(ctx, other)
	assert.NoError(t, err)

	// Nothing left to revoke
	assert.NoError(t, svc.RevokeAll(ctx, testAddress))
}

func TestTokenValidateRejectsGarbageAndExpired(t *testing.T) {
	svc := newTokenService(t, time.Minute)
	ctx := context.Background()

	_, err := svc.Validate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	token, _, err := svc.Issue(connectedSession(testAddress))
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

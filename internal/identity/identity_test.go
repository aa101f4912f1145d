package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{" boss ", ""})

	actor, err := p.Authenticate(context.Background(), "boss")
	require.NoError(t, err)
	assert.True(t, actor.Admin)

	actor, err = p.Authenticate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", actor.ID)
	assert.False(t, actor.Admin)

	// Admin must be granted, never inferred from the name.
	actor, err = p.Authenticate(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.False(t, actor.Admin)

	_, err = p.Authenticate(context.Background(), "  ")
	require.ErrorIs(t, err, reviewerrors.ErrUnauthenticated)
}

func TestJWTProvider_RoundTrip(t *testing.T) {
	p, err := NewJWTProvider(testSecret, "taskreview", []string{"ops"})
	require.NoError(t, err)

	token, err := p.Issue("u1", false, time.Hour)
	require.NoError(t, err)
	actor, err := p.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "u1", actor.ID)
	assert.False(t, actor.Admin)

	token, err = p.Issue("boss", true, time.Hour)
	require.NoError(t, err)
	actor, err = p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, actor.Admin)

	token, err = p.Issue("ops", false, time.Hour)
	require.NoError(t, err)
	actor, err = p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, actor.Admin, "configured admins are admins without the claim")
}

func TestJWTProvider_Rejects(t *testing.T) {
	p, err := NewJWTProvider(testSecret, "taskreview", nil)
	require.NoError(t, err)

	other, err := NewJWTProvider(strings.Repeat("x", 32), "taskreview", nil)
	require.NoError(t, err)
	forged, err := other.Issue("boss", true, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewJWTProvider(testSecret, "someone-else", nil)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue("u1", false, time.Hour)
	require.NoError(t, err)

	expired, err := p.Issue("u1", false, -time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Admin:            true,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "boss", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "taskreview", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	anonymous, err := noSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "Bearer not-a-token",
		"wrong key":    forged,
		"wrong issuer": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"missing sub":  anonymous,
		"bearer only":  "Bearer ",
		"whitespace":   "   ",
	}
	for name, credential := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), credential)
			require.ErrorIs(t, err, reviewerrors.ErrUnauthenticated)
		})
	}
}

func TestNewJWTProvider_ShortSecret(t *testing.T) {
	_, err := NewJWTProvider("short", "", nil)
	require.ErrorIs(t, err, reviewerrors.ErrConfigInvalidIdentity)
}

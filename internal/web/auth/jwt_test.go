package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

func TestNewTokenService_InvalidConfig(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.EqualError(t, err, "jwt secret is required")

	_, err = NewTokenService("secret", 0)
	assert.EqualError(t, err, "token ttl must be greater than 0")
}

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokenService("test-secret-key", time.Hour)
	require.NoError(t, err)

	caller := access.Caller{ID: "ann", Permissions: []string{"admin", "write-user"}}
	token, err := tokens.Issue(caller)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	parsed, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, caller, parsed)
}

func TestIssueRejectsAnonymous(t *testing.T) {
	tokens, err := NewTokenService("secret", time.Hour)
	require.NoError(t, err)

	_, err = tokens.Issue(access.Anonymous)
	assert.Error(t, err)
}

func TestParseRejects(t *testing.T) {
	tokens, err := NewTokenService("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenService("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, err := other.Issue(access.Caller{ID: "ann"})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ann",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ann",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

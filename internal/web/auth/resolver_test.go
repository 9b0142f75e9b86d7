package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

func TestBearerResolver(t *testing.T) {
	tokens, err := NewTokenService("secret", time.Hour)
	require.NoError(t, err)
	resolver, err := NewResolver(ModeJWT, tokens)
	require.NoError(t, err)

	token, err := tokens.Issue(access.Caller{ID: "ann"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	caller, err := resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, access.Anonymous, caller, "no header means anonymous")

	r.Header.Set("Authorization", "Bearer "+token)
	caller, err = resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "ann", caller.ID)

	r.Header.Set("Authorization", "Basic abc")
	_, err = resolver.Resolve(r)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHeaderResolver(t *testing.T) {
	resolver, err := NewResolver(ModeHeader, nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(UserIDHeader, "bob")
	r.Header.Set(PermissionsHeader, "admin, write-user,")

	caller, err := resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, access.Caller{ID: "bob", Permissions: []string{"admin", "write-user"}}, caller)
}

func TestNoneResolverIgnoresCredentials(t *testing.T) {
	resolver, err := NewResolver(ModeNone, nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(UserIDHeader, "bob")
	caller, err := resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, access.Anonymous, caller)
}

func TestNewResolverErrors(t *testing.T) {
	_, err := NewResolver(ModeJWT, nil)
	assert.Error(t, err)

	_, err = NewResolver("kerberos", nil)
	assert.Error(t, err)
}

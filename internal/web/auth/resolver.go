// Package auth establishes who a request runs as and checks endpoint
// dependencies against that caller.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

// ErrInvalidCredentials is returned when a request carries credentials that
// cannot be verified
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity modes
const (
	ModeJWT    = "jwt"
	ModeHeader = "header"
	ModeNone   = "none"
)

// Header names read in header mode
const (
	UserIDHeader      = "X-User-Id"
	PermissionsHeader = "X-Permissions"
)

// Resolver extracts the caller of a request. Requests without credentials
// resolve to the anonymous caller.
type Resolver interface {
	Resolve(r *http.Request) (access.Caller, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(r *http.Request) (access.Caller, error)

// Resolve calls f(r)
func (f ResolverFunc) Resolve(r *http.Request) (access.Caller, error) {
	return f(r)
}

// NewResolver returns the resolver of an identity mode. Tokens is required
// in jwt mode only.
func NewResolver(mode string, tokens *TokenService) (Resolver, error) {
	switch strings.ToLower(mode) {
	case ModeJWT:
		if tokens == nil {
			return nil, errors.New("jwt mode requires a token service")
		}
		return BearerResolver(tokens), nil
	case ModeHeader:
		return ResolverFunc(headerCaller), nil
	case "", ModeNone:
		return ResolverFunc(func(*http.Request) (access.Caller, error) {
			return access.Anonymous, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", mode)
	}
}

// BearerResolver reads the caller from an "Authorization: Bearer" token
func BearerResolver(tokens *TokenService) Resolver {
	return ResolverFunc(func(r *http.Request) (access.Caller, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return access.Anonymous, nil
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return access.Anonymous, fmt.Errorf("%w: malformed authorization header", ErrInvalidCredentials)
		}
		return tokens.Parse(parts[1])
	})
}

// headerCaller trusts X-User-Id and a comma separated X-Permissions. Only
// suitable behind a gateway that sets these headers.
func headerCaller(r *http.Request) (access.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		return access.Anonymous, nil
	}

	caller := access.Caller{ID: id}
	for _, p := range strings.Split(r.Header.Get(PermissionsHeader), ",") {
		if p = strings.TrimSpace(p); p != "" {
			caller.Permissions = append(caller.Permissions, p)
		}
	}
	return caller, nil
}

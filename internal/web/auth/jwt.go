package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

// Claims are the JWT claims a caller is read from. The subject is the
// caller id.
type Claims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens
type TokenService struct {
	secretKey []byte
	tokenTTL  time.Duration
}

// NewTokenService creates a token service with the given secret and token TTL
func NewTokenService(secretKey string, tokenTTL time.Duration) (*TokenService, error) {
	if secretKey == "" {
		return nil, errors.New("jwt secret is required")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("token ttl must be greater than 0")
	}
	return &TokenService{secretKey: []byte(secretKey), tokenTTL: tokenTTL}, nil
}

// Issue signs a token for caller
func (s *TokenService) Issue(caller access.Caller) (string, error) {
	if !caller.Authenticated() {
		return "", errors.New("cannot issue a token for the anonymous caller")
	}

	now := time.Now()
	claims := Claims{
		Permissions: caller.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Parse validates a token and returns the caller it was issued for
func (s *TokenService) Parse(tokenString string) (access.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return access.Anonymous, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !token.Valid || claims.Subject == "" {
		return access.Anonymous, ErrInvalidCredentials
	}

	return access.Caller{ID: claims.Subject, Permissions: claims.Permissions}, nil
}

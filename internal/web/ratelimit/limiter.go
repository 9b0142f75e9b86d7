// Package ratelimit counts requests per key within a time window.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	errLimit  = errors.New("limit must be greater than 0")
	errWindow = errors.New("window must be greater than 0")
)

// Limiter decides whether one more request may pass for a key
type Limiter interface {
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info is the state of a key after an Allow call
type Info struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests remaining in the current window
	Remaining int
	// ResetAt is when the oldest counted request leaves the window
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// Config is shared by every limiter
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return errLimit
	}
	if c.Window <= 0 {
		return errWindow
	}
	return nil
}

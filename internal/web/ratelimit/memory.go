package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-process token bucket, used when no Redis is
// configured. Each key holds up to Limit tokens refilled evenly over Window.
type MemoryLimiter struct {
	mu      sync.Mutex
	config  Config
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(config Config) (*MemoryLimiter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}, nil
}

// Allow takes a token from the bucket of key
func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(l.config.Limit)
	perToken := float64(l.config.Window) / capacity

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		l.buckets[key] = b
	} else if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += float64(elapsed) / perToken
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.lastRefill = now
	}

	info := &Info{Limit: l.config.Limit}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	missing := capacity - b.tokens
	info.ResetAt = now.Add(time.Duration(missing * perToken))

	l.sweep(now)
	return info, nil
}

// sweep drops buckets that have been full for a whole window
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.config.Window {
			delete(l.buckets, key)
		}
	}
}

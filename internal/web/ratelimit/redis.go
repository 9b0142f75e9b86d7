package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then records the
// request when the key is under its limit. Returns {allowed, count}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl)
	return {1, current + 1}
end
return {0, current}
`)

// RedisLimiter is a sliding window limiter shared by every server instance
// pointing at the same Redis
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
}

// NewRedisLimiter creates a sliding window limiter storing one sorted set
// per key under prefix
func NewRedisLimiter(client *redis.Client, config Config, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, config: config, prefix: prefix}, nil
}

// Allow records a request for key if the window has room
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := time.Now()
	windowStart := now.Add(-l.config.Window)
	member := strconv.FormatInt(now.UnixNano(), 10)

	result, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixNano(),
		windowStart.UnixNano(),
		l.config.Limit,
		l.config.Window.Milliseconds(),
		member,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 2 {
		return nil, errors.New("unexpected redis script result")
	}

	remaining := l.config.Limit - int(result[1])
	if remaining < 0 {
		remaining = 0
	}

	return &Info{
		Limit:     l.config.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.config.Window),
		Allowed:   result[0] == 1,
	}, nil
}

// Reset removes all rate limit data for the given key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// Count returns the number of requests of key in the current window
func (l *RedisLimiter) Count(ctx context.Context, key string) (int, error) {
	redisKey := l.prefix + key
	windowStart := time.Now().Add(-l.config.Window)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return int(count.Val()), nil
}

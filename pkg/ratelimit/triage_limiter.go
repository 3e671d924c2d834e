// Package ratelimit throttles calls to hosted inference endpoints.
//
// The window is kept in Redis so every replica shares the same budget against the
// provider's quota. Without Redis the limiter is permissive.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond int           // steady rate per key (default: 5)
	BurstSize         int           // extra requests tolerated inside one window (default: 5)
	Window            time.Duration // window size (default: 1s)
	KeyPrefix         string        // redis key namespace (default: "triage:ratelimit")
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 5,
		BurstSize:         5,
		Window:            time.Second,
		KeyPrefix:         "triage:ratelimit",
	}
}

// slidingWindowScript trims expired entries, then admits the call if the window has room.
// A negative return value is the wait in milliseconds until the oldest entry expires.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	cfg    Config
	nextID func() string
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// A nil client yields a limiter that admits every call.
func NewSlidingWindowLimiter(client *redis.Client, cfg *Config) *SlidingWindowLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	def := DefaultConfig()
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.BurstSize < 0 {
		c.BurstSize = 0
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}

	var seq atomic.Uint64
	return &SlidingWindowLimiter{
		redis: client,
		cfg:   c,
		nextID: func() string {
			return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq.Add(1))
		},
	}
}

// Enabled reports whether the limiter is backed by Redis.
func (l *SlidingWindowLimiter) Enabled() bool {
	return l != nil && l.redis != nil
}

// Allow checks if a call for key is allowed and returns the wait duration if not.
// Redis errors admit the call; throttling must never be the reason a request fails.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}

	now := time.Now()
	windowStart := now.Add(-l.cfg.Window)

	result, err := slidingWindowScript.Run(ctx, l.redis, []string{l.key(key)},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.cfg.RequestsPerSecond+l.cfg.BurstSize,
		l.cfg.Window.Milliseconds(),
		l.nextID(),
	).Int64()
	if err != nil {
		return true, 0
	}

	if result == 1 {
		return true, 0
	}
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond
	}
	return false, l.cfg.Window
}

// Ping checks the Redis connection backing the limiter.
func (l *SlidingWindowLimiter) Ping(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.redis.Ping(ctx).Err()
}

func (l *SlidingWindowLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.cfg.KeyPrefix, key)
}

// NewRedisClient parses a redis:// URL into a client. An empty URL returns nil.
func NewRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agberohq/agbero/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed window: a counter
// per key that expires after the window. Slightly bursty at window edges,
// which is acceptable for API abuse protection.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow counts the request and reports whether the key is still within its
// limit for the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rk := rateLimitKey(key)

	pipe := rl.rdb.TxPipeline()
	count := pipe.Incr(ctx, rk)
	pipe.Do(ctx, "pexpire", rk, window.Milliseconds(), "NX")
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	return count.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)

// Package ratelimit throttles requests with fixed-window Redis counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const keyPrefix = "student-auth:rl:"

// Limiter counts hits per key within a fixed window.
type Limiter struct {
	redis  redis.UniversalClient
	max    int
	window time.Duration
}

// New returns a limiter allowing max hits per window for each key.
func New(client redis.UniversalClient, max int, window time.Duration) *Limiter {
	return &Limiter{redis: client, max: max, window: window}
}

// Result describes the state of a key after a hit.
type Result struct {
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Allow records a hit for key. It returns ErrRateLimited once the window's
// budget is spent and ErrRedisUnavailable when the counter cannot be read.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	res := Result{Limit: l.max}
	k := keyPrefix + key

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return res, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		res.ResetIn = l.window
	} else if ttl, err := l.redis.TTL(ctx, k).Result(); err == nil && ttl > 0 {
		res.ResetIn = ttl
	}

	remaining := int64(l.max) - count
	if remaining < 0 {
		remaining = 0
	}
	res.Remaining = int(remaining)

	if count > int64(l.max) {
		return res, ErrRateLimited
	}
	return res, nil
}

// Check reports the state of key without recording a hit. It returns
// ErrRateLimited when the budget is already spent.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	res := Result{Limit: l.max, Remaining: l.max}
	k := keyPrefix + key

	count, err := l.redis.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl, err := l.redis.TTL(ctx, k).Result(); err == nil && ttl > 0 {
		res.ResetIn = ttl
	}

	res.Remaining = max(l.max-int(count), 0)
	if count >= int64(l.max) {
		return res, ErrRateLimited
	}
	return res, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

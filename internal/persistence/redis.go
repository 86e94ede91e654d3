package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/config"
)

const redisDialTimeout = 3 * time.Second

// Redis holds the client shared by the per-IP and per-identity limiters.
type Redis struct {
	Client redis.UniversalClient
	addrs  []string
}

// NewRedis builds a client for cfg.Addr, which may list comma-separated
// addresses for a cluster. The limiters fail open, so an unreachable server
// is only logged.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	addrs := splitAddrs(cfg.Addr)
	r := &Redis{
		Client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       addrs,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: redisDialTimeout,
		}),
		addrs: addrs,
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, limiters will fail open", zap.Strings("addrs", addrs), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.Strings("addrs", addrs))
	}
	return r
}

func splitAddrs(raw string) []string {
	var addrs []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// Ping reports whether the limiter backend is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

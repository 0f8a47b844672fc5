// Package ratelimit enforces a fixed-window request quota per identity,
// backed by an atomic increment-with-expiry counter in Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterStore is the minimal counter contract the limiter needs. The Redis
// client satisfies it through redisCounterStore; tests supply their own.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Config holds rate limiting configuration.
type Config struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// DefaultConfig returns the default quota: 30 requests per rolling hour.
func DefaultConfig() Config {
	return Config{
		Limit:     30,
		Window:    time.Hour,
		KeyPrefix: "ratelimit:id",
	}
}

// Limiter implements the fixed-window counter. Loss of counter state only
// loosens limiting, so any store failure fails open.
type Limiter struct {
	store  CounterStore
	cfg    Config
	logger *zap.Logger
}

// New builds a Limiter on top of a Redis client.
func New(client *redis.Client, cfg Config, logger *zap.Logger) *Limiter {
	return NewWithStore(&redisCounterStore{client: client}, cfg, logger)
}

// NewWithStore builds a Limiter with a custom counter store.
func NewWithStore(store CounterStore, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, cfg: cfg, logger: logger}
}

// Allow records an attempt for identity and reports whether it is within
// quota. A limit of zero applies the configured default. The counter always
// reflects the attempt, so the request that crosses the limit is the one
// denied.
func (l *Limiter) Allow(ctx context.Context, identity string, limit int) (bool, int) {
	if limit <= 0 {
		limit = l.cfg.Limit
	}
	key := l.cfg.KeyPrefix + ":" + identity

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, failing open",
			zap.String("identity", identity), zap.Error(err))
		return true, limit
	}

	// First request in the window owns setting the TTL.
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.cfg.Window); err != nil {
			l.logger.Warn("failed to set rate limit window", zap.Error(err))
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining
}

// Window exposes the configured window length for response headers.
func (l *Limiter) Window() time.Duration {
	return l.cfg.Window
}

type redisCounterStore struct {
	client *redis.Client
}

func (s *redisCounterStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *redisCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss signals that the cache was reachable but holds no entry.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable signals an infrastructure failure talking to the cache.
	// Callers fail open on this and fall back to the durable store; it is
	// never surfaced to the end caller.
	ErrUnavailable = errors.New("cache unavailable")
)

const linkKeyPrefix = "link:"

// LinkCache caches code → destination mappings with per-entry TTL.
//
// Entries are projections of durable rows, never a source of truth: any
// component may purge or repopulate them without coordination because the
// resolver always rebuilds from the store on a miss.
type LinkCache interface {
	Get(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, code, destination string, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

type redisLinkCache struct {
	client *redis.Client
}

// NewLinkCache returns a Redis-backed LinkCache.
func NewLinkCache(client *redis.Client) LinkCache {
	return &redisLinkCache{client: client}
}

func (c *redisLinkCache) Get(ctx context.Context, code string) (string, error) {
	val, err := c.client.Get(ctx, linkKeyPrefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// Set stores the mapping. A zero ttl keeps the entry until it is explicitly
// invalidated (links without an expiry).
func (c *redisLinkCache) Set(ctx context.Context, code, destination string, ttl time.Duration) error {
	if err := c.client.Set(ctx, linkKeyPrefix+code, destination, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *redisLinkCache) Delete(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, linkKeyPrefix+code).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

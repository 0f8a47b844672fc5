package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
)

const (
	codesSetKey        = "codes:used"
	codesRebuildKey    = "codes:used:rebuild"
	bloomEstimateItems = 1_000_000
	bloomFalsePositive = 0.01
)

// MembershipSet tracks which codes are currently allocated. It is an advisory
// accelerator: a "taken" answer may be trusted for fast rejection, but a "not
// taken" answer must always be re-verified against the durable store before
// any insert.
type MembershipSet interface {
	Add(ctx context.Context, code string) error
	Contains(ctx context.Context, code string) (bool, error)
	Remove(ctx context.Context, code string) error
	// Rebuild replaces the whole set with the given codes. The replacement is
	// atomic (staged into a scratch key, renamed into place) so concurrent
	// lookups never observe a partially built set.
	Rebuild(ctx context.Context, codes []string) error
}

// redisMembershipSet pairs the shared Redis set with an in-process bloom
// filter. The bloom filter answers definite negatives without a network
// round-trip; its false positives fall through to Redis and ultimately the
// store, so it can only ever cost an extra lookup, never a wrong answer.
type redisMembershipSet struct {
	client *redis.Client

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewMembershipSet returns a Redis-backed MembershipSet with a local bloom
// accelerator. The filter starts empty and becomes authoritative for
// negatives only after the first Rebuild.
func NewMembershipSet(client *redis.Client) MembershipSet {
	return &redisMembershipSet{
		client: client,
	}
}

func (s *redisMembershipSet) Add(ctx context.Context, code string) error {
	s.mu.Lock()
	if s.filter != nil {
		s.filter.AddString(code)
	}
	s.mu.Unlock()

	if err := s.client.SAdd(ctx, codesSetKey, code).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisMembershipSet) Contains(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()

	// Bloom filters never yield false negatives, so "not in filter" is final.
	if filter != nil && !filter.TestString(code) {
		return false, nil
	}

	taken, err := s.client.SIsMember(ctx, codesSetKey, code).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return taken, nil
}

func (s *redisMembershipSet) Remove(ctx context.Context, code string) error {
	// The bloom filter cannot unlearn a code; the resulting false positive
	// just forces the Redis lookup.
	if err := s.client.SRem(ctx, codesSetKey, code).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisMembershipSet) Rebuild(ctx context.Context, codes []string) error {
	fresh := bloom.NewWithEstimates(bloomEstimateItems, bloomFalsePositive)
	for _, code := range codes {
		fresh.AddString(code)
	}

	if err := s.replaceSet(ctx, codes); err != nil {
		return err
	}

	s.mu.Lock()
	s.filter = fresh
	s.mu.Unlock()
	return nil
}

func (s *redisMembershipSet) replaceSet(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		if err := s.client.Del(ctx, codesSetKey).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, codesRebuildKey)
	members := make([]interface{}, len(codes))
	for i, code := range codes {
		members[i] = code
	}
	pipe.SAdd(ctx, codesRebuildKey, members...)
	pipe.Rename(ctx, codesRebuildKey, codesSetKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

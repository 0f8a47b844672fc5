package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/shortcode"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ResolveState classifies the outcome of a resolution. Expired and NotFound
// are states, not errors.
type ResolveState int

const (
	StateNotFound ResolveState = iota
	StateFound
	StateExpired
)

func (s ResolveState) String() string {
	switch s {
	case StateFound:
		return "found"
	case StateExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// ResolverDeps bundles dependencies for the resolver.
type ResolverDeps struct {
	Logger          *zap.Logger
	Repo            repository.LinkRepository
	Cache           cache.LinkCache
	Membership      cache.MembershipSet
	CacheTTLCeiling time.Duration
	Now             func() time.Time
}

// Resolver maps a code to its destination, cache-aside: cache hit is the
// fast path, a miss rebuilds the entry from the store. Gated links are never
// cached, so a hit can be served without an access-policy check.
type Resolver struct {
	logger     *zap.Logger
	repo       repository.LinkRepository
	cache      cache.LinkCache
	membership cache.MembershipSet
	ttlCeiling time.Duration
	now        func() time.Time
}

// NewResolver returns a Resolver built from deps.
func NewResolver(deps ResolverDeps) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttlCeiling := deps.CacheTTLCeiling
	if ttlCeiling <= 0 {
		ttlCeiling = 24 * time.Hour
	}
	return &Resolver{
		logger:     logger,
		repo:       deps.Repo,
		cache:      deps.Cache,
		membership: deps.Membership,
		ttlCeiling: ttlCeiling,
		now:        now,
	}
}

// Resolution carries the outcome of a record-level resolve. Link is non-nil
// only when the record was loaded from the store; the cache fast path serves
// ungated links without one. For gated links Destination is withheld until
// the access policy allows it.
type Resolution struct {
	State       ResolveState
	Destination string
	Gated       bool
	Link        *model.Link
}

// Resolve returns the destination for code. On a cache hit the store is not
// touched. Cache failures are absorbed and degrade to the store lookup; only
// store failures propagate. Gated links resolve as Found with an empty
// destination; callers serve them through ResolveRecord plus the access
// policy.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, ResolveState, error) {
	res, err := r.ResolveRecord(ctx, code)
	return res.Destination, res.State, err
}

// ResolveRecord is the record-level variant used by the transport layer: it
// applies the same cache-aside path but hands back the full record when one
// was loaded, so gated links can be passed through the access policy.
func (r *Resolver) ResolveRecord(ctx context.Context, code string) (Resolution, error) {
	code = shortcode.Normalize(code)
	if r.cache != nil {
		destination, err := r.cache.Get(ctx, code)
		switch {
		case err == nil:
			// Gated links are never cached, so a hit is safe to serve as-is.
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			metrics.Resolutions.WithLabelValues(StateFound.String()).Inc()
			return Resolution{State: StateFound, Destination: destination}, nil
		case errors.Is(err, cache.ErrMiss):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("unavailable").Inc()
			r.logger.Warn("link cache unavailable, falling back to store", zap.Error(err))
		}
	}

	link, err := r.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			metrics.Resolutions.WithLabelValues(StateNotFound.String()).Inc()
			return Resolution{State: StateNotFound}, nil
		}
		return Resolution{State: StateNotFound}, fmt.Errorf("load link: %w", err)
	}

	now := r.now()
	if link.ExpiredAt(now) {
		r.purgeStale(ctx, code, link.ExpiresAt != nil && link.ExpiresAt.Before(now))
		metrics.Resolutions.WithLabelValues(StateExpired.String()).Inc()
		return Resolution{State: StateExpired}, nil
	}

	metrics.Resolutions.WithLabelValues(StateFound.String()).Inc()

	if link.Gated() {
		return Resolution{State: StateFound, Gated: true, Link: link}, nil
	}

	if r.cache != nil {
		ttl := link.RemainingTTL(now, r.ttlCeiling)
		if err := r.cache.Set(ctx, code, link.Destination, ttl); err != nil {
			r.logger.Warn("failed to repopulate link cache", zap.String("code", code), zap.Error(err))
		}
	}

	return Resolution{State: StateFound, Destination: link.Destination, Link: link}, nil
}

// purgeStale removes any leftover cache entry for an expired code. The
// membership entry goes too when the row's expiry passed; a click-exhausted
// code stays in the membership set because it is still allocated.
func (r *Resolver) purgeStale(ctx context.Context, code string, timeExpired bool) {
	if r.cache != nil {
		if err := r.cache.Delete(ctx, code); err != nil {
			r.logger.Warn("failed to purge expired cache entry", zap.String("code", code), zap.Error(err))
		}
	}
	if timeExpired && r.membership != nil {
		if err := r.membership.Remove(ctx, code); err != nil {
			r.logger.Warn("failed to purge expired membership entry", zap.String("code", code), zap.Error(err))
		}
	}
}

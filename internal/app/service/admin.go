package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/shortcode"
	"go.uber.org/zap"
)

// LinkStats summarizes a link for the stats endpoint.
type LinkStats struct {
	Code        string
	Destination string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	ClickCount  int64
	MaxClicks   int64
}

// AdminDeps bundles dependencies for administrative operations.
type AdminDeps struct {
	Logger     *zap.Logger
	Repo       repository.LinkRepository
	Cache      cache.LinkCache
	Membership cache.MembershipSet
	Events     *EventPublisher
}

// Admin carries operations triggered by administrative action rather than
// request flow: bulk deletion and stats lookups. Bulk deletion is the only
// way a link row ever leaves the store (besides the reconciler's opt-in
// expired-row cleanup).
type Admin struct {
	logger     *zap.Logger
	repo       repository.LinkRepository
	cache      cache.LinkCache
	membership cache.MembershipSet
	events     *EventPublisher
}

// NewAdmin returns an Admin built from deps.
func NewAdmin(deps AdminDeps) *Admin {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{
		logger:     logger,
		repo:       deps.Repo,
		cache:      deps.Cache,
		membership: deps.Membership,
		events:     deps.Events,
	}
}

// BulkDelete removes the given codes durably. Cache and membership traces are
// purged before the durable delete, so a dangling cache entry can never
// outlive its row. Returns the number of rows deleted and the codes that did
// not exist.
func (a *Admin) BulkDelete(ctx context.Context, codes []string) (int64, []string, error) {
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		if c := shortcode.Normalize(code); c != "" {
			normalized = append(normalized, c)
		}
	}
	if len(normalized) == 0 {
		return 0, nil, nil
	}

	existing, err := a.repo.FilterExisting(ctx, normalized)
	if err != nil {
		return 0, nil, fmt.Errorf("filter codes: %w", err)
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		existingSet[code] = struct{}{}
	}

	var notFound []string
	for _, code := range normalized {
		if _, ok := existingSet[code]; !ok {
			notFound = append(notFound, code)
		}
	}

	// Cache purge first, then the durable delete.
	for _, code := range existing {
		if a.cache != nil {
			if err := a.cache.Delete(ctx, code); err != nil {
				a.logger.Warn("failed to purge cache entry", zap.String("code", code), zap.Error(err))
			}
		}
		if a.membership != nil {
			if err := a.membership.Remove(ctx, code); err != nil {
				a.logger.Warn("failed to purge membership entry", zap.String("code", code), zap.Error(err))
			}
		}
	}

	deleted, err := a.repo.DeleteByCodes(ctx, existing)
	if err != nil {
		return 0, notFound, fmt.Errorf("delete links: %w", err)
	}

	if a.events != nil {
		for _, code := range existing {
			if err := a.events.Publish(model.LinkEventDeleted, code); err != nil {
				a.logger.Warn("failed to publish delete event", zap.String("code", code), zap.Error(err))
			}
		}
	}

	return deleted, notFound, nil
}

// Stats returns the stored facts about a link.
func (a *Admin) Stats(ctx context.Context, code string) (*LinkStats, error) {
	link, err := a.repo.GetByCode(ctx, shortcode.Normalize(code))
	if err != nil {
		return nil, err
	}
	return &LinkStats{
		Code:        link.Code,
		Destination: link.Destination,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		ClickCount:  link.ClickCount,
		MaxClicks:   link.MaxClicks,
	}, nil
}

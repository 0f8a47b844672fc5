package service

import (
	"context"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ReconcilerDeps bundles dependencies for the reconciliation task.
type ReconcilerDeps struct {
	Logger     *zap.Logger
	Repo       repository.LinkRepository
	Cache      cache.LinkCache
	Membership cache.MembershipSet
	Events     *EventPublisher
	Interval   time.Duration
	// DeleteExpired additionally removes expired rows from the store. Off by
	// default: retained rows keep their codes reserved.
	DeleteExpired bool
	Now           func() time.Time
}

// Reconciler periodically repairs cache/store drift: it purges cache entries
// whose durable record expired and rebuilds the membership set from the full
// durable code list. The durable rows themselves are retained unless
// DeleteExpired is set.
type Reconciler struct {
	logger        *zap.Logger
	repo          repository.LinkRepository
	cache         cache.LinkCache
	membership    cache.MembershipSet
	events        *EventPublisher
	interval      time.Duration
	deleteExpired bool
	now           func() time.Time
	stopChan      chan struct{}
}

// NewReconciler creates a reconciliation task. It does not start running
// until Start is called.
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		logger:        logger,
		repo:          deps.Repo,
		cache:         deps.Cache,
		membership:    deps.Membership,
		events:        deps.Events,
		interval:      interval,
		deleteExpired: deps.DeleteExpired,
		now:           now,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop cancels the loop. An in-flight pass finishes its current record and
// then stops at the next boundary.
func (r *Reconciler) Stop() {
	close(r.stopChan)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-r.stopChan:
					cancel()
				case <-ctx.Done():
				}
			}()
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation pass failed", zap.Error(err))
			}
			cancel()
		case <-r.stopChan:
			r.logger.Info("reconciler stopped")
			return
		}
	}
}

// RunOnce executes a single reconciliation pass. Failures on individual
// records are logged and skipped; only a failure to enumerate the store
// aborts the pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	now := r.now()

	expired, err := r.repo.ListExpired(ctx, now)
	if err != nil {
		return err
	}

	purged := 0
	for _, link := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.purgeOne(ctx, link.Code) {
			purged++
		}
	}
	if purged > 0 {
		metrics.ReconcilerPurged.Add(float64(purged))
		r.logger.Info("purged expired cache entries", zap.Int("count", purged))
	}

	if r.deleteExpired && len(expired) > 0 {
		r.deleteExpiredRows(ctx, expired)
	}

	// Full overwrite from the durable code list corrects any drift from lost
	// writes. Expired-but-retained codes stay in: their identifiers remain
	// reserved. The replace is atomic, so lookups never see a partial set.
	codes, err := r.repo.ListCodes(ctx)
	if err != nil {
		return err
	}
	if r.membership != nil {
		if err := r.membership.Rebuild(ctx, codes); err != nil {
			r.logger.Error("failed to rebuild membership set", zap.Error(err))
		} else {
			r.logger.Debug("membership set rebuilt", zap.Int("codes", len(codes)))
		}
	}

	metrics.ReconcilerRuns.Inc()
	return nil
}

// purgeOne removes the cache and membership traces of an expired code. The
// durable row is left alone.
func (r *Reconciler) purgeOne(ctx context.Context, code string) bool {
	ok := true
	if r.cache != nil {
		if err := r.cache.Delete(ctx, code); err != nil {
			r.logger.Warn("failed to purge cache entry", zap.String("code", code), zap.Error(err))
			ok = false
		}
	}
	if r.membership != nil {
		if err := r.membership.Remove(ctx, code); err != nil {
			r.logger.Warn("failed to purge membership entry", zap.String("code", code), zap.Error(err))
			ok = false
		}
	}
	return ok
}

// deleteExpiredRows removes expired rows durably. Cache traces were purged
// first, so no window exists where a cache entry points at a deleted row.
func (r *Reconciler) deleteExpiredRows(ctx context.Context, expired []model.Link) {
	codes := make([]string, 0, len(expired))
	for _, link := range expired {
		codes = append(codes, link.Code)
	}

	deleted, err := r.repo.DeleteByCodes(ctx, codes)
	if err != nil {
		r.logger.Error("failed to delete expired rows", zap.Error(err))
		return
	}
	r.logger.Info("deleted expired rows", zap.Int64("count", deleted))

	if r.events != nil {
		for _, code := range codes {
			if err := r.events.Publish(model.LinkEventPurged, code); err != nil {
				r.logger.Warn("failed to publish purge event", zap.String("code", code), zap.Error(err))
			}
		}
	}
}

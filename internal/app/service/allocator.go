package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/safety"
	"github.com/sifan077/PowerLink/internal/app/shortcode"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AllocatorConfig tunes code generation and expiry policy.
type AllocatorConfig struct {
	CodeLength        int
	MinCustomLength   int
	MaxCustomLength   int
	DefaultExpiryDays int
	MaxExpiryDays     int
	ReservedCodes     []string
	CacheTTLCeiling   time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
}

// DefaultAllocatorConfig mirrors the service defaults: 7-char random codes,
// custom codes of 3-20 chars, 30-day default expiry capped at a year.
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		CodeLength:        7,
		MinCustomLength:   3,
		MaxCustomLength:   20,
		DefaultExpiryDays: 30,
		MaxExpiryDays:     365,
		ReservedCodes:     shortcode.DefaultReserved,
		CacheTTLCeiling:   24 * time.Hour,
		MaxAttempts:       10,
		BackoffBase:       25 * time.Millisecond,
	}
}

// AllocateInput captures data required to allocate a link.
type AllocateInput struct {
	Code            string // optional custom code
	Destination     string
	ExpiryDays      int
	Password        string // optional; gates the link when set
	MaxClicks       int64  // optional click ceiling; 0 means unlimited
	CreatorIdentity string
}

// Availability is the answer to a code availability check.
type Availability int

const (
	AvailabilityAvailable Availability = iota
	AvailabilityTaken
	AvailabilityReserved
)

func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityTaken:
		return "taken"
	case AvailabilityReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// AllocatorDeps bundles everything the allocator needs.
type AllocatorDeps struct {
	Logger     *zap.Logger
	Repo       repository.LinkRepository
	Cache      cache.LinkCache
	Membership cache.MembershipSet
	Safety     *safety.Validator
	Events     *EventPublisher
	Config     AllocatorConfig
	Now        func() time.Time
}

// Allocator reserves unique short codes and creates link records.
//
// Uniqueness is enforced solely by the store's constraint on code: the
// membership set is a pre-check that saves round-trips, and every allocation
// path still attempts the insert and treats a duplicate-key error as the
// authoritative collision signal.
type Allocator struct {
	logger     *zap.Logger
	repo       repository.LinkRepository
	cache      cache.LinkCache
	membership cache.MembershipSet
	safety     *safety.Validator
	events     *EventPublisher
	cfg        AllocatorConfig
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewAllocator returns an Allocator built from deps, filling zero-valued
// config fields with defaults.
func NewAllocator(deps AllocatorDeps) *Allocator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	def := DefaultAllocatorConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.MinCustomLength <= 0 {
		cfg.MinCustomLength = def.MinCustomLength
	}
	if cfg.MaxCustomLength <= 0 {
		cfg.MaxCustomLength = def.MaxCustomLength
	}
	if cfg.DefaultExpiryDays <= 0 {
		cfg.DefaultExpiryDays = def.DefaultExpiryDays
	}
	if cfg.MaxExpiryDays <= 0 {
		cfg.MaxExpiryDays = def.MaxExpiryDays
	}
	if cfg.ReservedCodes == nil {
		cfg.ReservedCodes = def.ReservedCodes
	}
	if cfg.CacheTTLCeiling <= 0 {
		cfg.CacheTTLCeiling = def.CacheTTLCeiling
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Allocator{
		logger:     logger,
		repo:       deps.Repo,
		cache:      deps.Cache,
		membership: deps.Membership,
		safety:     deps.Safety,
		events:     deps.Events,
		cfg:        cfg,
		now:        now,
		sleep:      sleepCtx,
	}
}

// Allocate validates the destination, reserves a code (supplied or random)
// and creates the durable record. The insert commits before any cache side
// effect, so a cache entry never exists without a backing row.
func (a *Allocator) Allocate(ctx context.Context, input AllocateInput) (*model.Link, error) {
	if a.safety != nil {
		if err := a.safety.Validate(input.Destination); err != nil {
			metrics.AllocationsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}

	link := &model.Link{
		Destination:     input.Destination,
		ExpiresAt:       a.expiry(input.ExpiryDays),
		MaxClicks:       input.MaxClicks,
		CreatorIdentity: input.CreatorIdentity,
	}

	if input.Password != "" {
		digest, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		link.PasswordDigest = string(digest)
	}

	var err error
	if input.Code != "" {
		err = a.allocateCustom(ctx, link, input.Code)
	} else {
		err = a.allocateRandom(ctx, link)
	}
	if err != nil {
		metrics.AllocationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.AllocationsTotal.WithLabelValues("created").Inc()
	a.afterInsert(ctx, link)
	return link, nil
}

// allocateCustom reserves a caller-supplied code. A collision is terminal;
// no retry is attempted.
func (a *Allocator) allocateCustom(ctx context.Context, link *model.Link, requested string) error {
	code := shortcode.Normalize(requested)
	if !shortcode.Valid(code, a.cfg.MinCustomLength, a.cfg.MaxCustomLength) {
		return fmt.Errorf("%w: %q must be %d-%d characters of a-z, 0-9 and interior hyphens",
			ErrInvalidCode, code, a.cfg.MinCustomLength, a.cfg.MaxCustomLength)
	}
	if shortcode.IsReserved(code, a.cfg.ReservedCodes) {
		return fmt.Errorf("%w: %q", ErrReservedCode, code)
	}

	taken, err := a.codeTaken(ctx, code)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %q", ErrCodeTaken, code)
	}

	link.Code = code
	if err := a.repo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return fmt.Errorf("%w: %q", ErrCodeTaken, code)
		}
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// allocateRandom generates candidates and inserts optimistically, retrying
// with exponential backoff when a concurrent allocator wins the race on the
// same candidate.
func (a *Allocator) allocateRandom(ctx context.Context, link *model.Link) error {
	backoff := a.cfg.BackoffBase
	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		candidate, err := shortcode.Generate(a.cfg.CodeLength)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		taken, err := a.codeTaken(ctx, candidate)
		if err != nil {
			return err
		}
		if taken {
			metrics.AllocationRetries.Inc()
			continue
		}

		link.Code = candidate
		err = a.repo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrDuplicateCode) {
			// Lost the race on this candidate; back off and try a fresh one.
			metrics.AllocationRetries.Inc()
			a.logger.Debug("random code collision, retrying",
				zap.String("code", candidate), zap.Int("attempt", attempt+1))
			continue
		}
		return fmt.Errorf("create link: %w", err)
	}
	return ErrAllocationExhausted
}

// CheckAvailability reports whether a code could be allocated right now.
// The membership set is trusted for "taken"; "not taken" is re-verified
// against the store.
func (a *Allocator) CheckAvailability(ctx context.Context, code string) (Availability, error) {
	code = shortcode.Normalize(code)
	if !shortcode.Valid(code, a.cfg.MinCustomLength, a.cfg.MaxCustomLength) {
		return AvailabilityReserved, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if shortcode.IsReserved(code, a.cfg.ReservedCodes) {
		return AvailabilityReserved, nil
	}

	taken, err := a.codeTaken(ctx, code)
	if err != nil {
		return AvailabilityTaken, err
	}
	if taken {
		return AvailabilityTaken, nil
	}
	return AvailabilityAvailable, nil
}

// codeTaken consults the membership set first and falls back to the store.
// A membership "taken" is trusted; anything else is verified durably, since a
// false negative here would otherwise let a duplicate insert through to the
// constraint.
func (a *Allocator) codeTaken(ctx context.Context, code string) (bool, error) {
	if a.membership != nil {
		taken, err := a.membership.Contains(ctx, code)
		if err != nil {
			a.logger.Warn("membership set unavailable, checking store directly", zap.Error(err))
		} else if taken {
			return true, nil
		}
	}

	exists, err := a.repo.Exists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// afterInsert performs the cache-side bookkeeping once the row is durable.
// Failures here are absorbed: the resolver rebuilds from the store on demand
// and the reconciler repairs drift.
func (a *Allocator) afterInsert(ctx context.Context, link *model.Link) {
	if a.cache != nil && !link.Gated() {
		ttl := link.RemainingTTL(a.now(), a.cfg.CacheTTLCeiling)
		if err := a.cache.Set(ctx, link.Code, link.Destination, ttl); err != nil {
			a.logger.Warn("failed to cache new link", zap.String("code", link.Code), zap.Error(err))
		}
	}
	if a.membership != nil {
		if err := a.membership.Add(ctx, link.Code); err != nil {
			a.logger.Warn("failed to record code membership", zap.String("code", link.Code), zap.Error(err))
		}
	}
	if a.events != nil {
		if err := a.events.Publish(model.LinkEventCreated, link.Code); err != nil {
			a.logger.Warn("failed to publish link created event", zap.String("code", link.Code), zap.Error(err))
		}
	}
}

// expiry computes the expiry timestamp from a day count. Zero or negative
// days fall back to the default, so a new link is never born expired.
func (a *Allocator) expiry(days int) *time.Time {
	if days <= 0 {
		days = a.cfg.DefaultExpiryDays
	}
	if days > a.cfg.MaxExpiryDays {
		days = a.cfg.MaxExpiryDays
	}
	at := a.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	return &at
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

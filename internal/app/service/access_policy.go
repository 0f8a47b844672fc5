package service

import (
	"context"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AccessReason explains an access-policy decision.
type AccessReason string

const (
	ReasonOK                AccessReason = "ok"
	ReasonPasswordRequired  AccessReason = "password_required"
	ReasonPasswordIncorrect AccessReason = "password_incorrect"
	ReasonLimitReached      AccessReason = "limit_reached"
)

// Decision is the outcome of evaluating a link's gate.
//
// LimitReached is advisory: the request that spends the last click is still
// allowed, and enforcement happens on the next resolution, which treats a
// click-exhausted link as expired.
type Decision struct {
	Allowed      bool
	Destination  string
	Reason       AccessReason
	LimitReached bool
}

// AccessPolicy evaluates per-link gating (password, click ceiling) at
// resolution time.
type AccessPolicy struct {
	logger *zap.Logger
	clicks repository.ClickCounter
}

// NewAccessPolicy returns an AccessPolicy that records clicks through the
// given counter.
func NewAccessPolicy(logger *zap.Logger, clicks repository.ClickCounter) *AccessPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessPolicy{logger: logger, clicks: clicks}
}

// Evaluate checks the link's password gate and, when access is allowed,
// records the click. The click increment is best-effort: a bookkeeping
// failure never blocks access.
func (p *AccessPolicy) Evaluate(ctx context.Context, link *model.Link, suppliedPassword *string) Decision {
	if link.PasswordDigest != "" {
		if suppliedPassword == nil || *suppliedPassword == "" {
			return Decision{Reason: ReasonPasswordRequired}
		}
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordDigest), []byte(*suppliedPassword)); err != nil {
			return Decision{Reason: ReasonPasswordIncorrect}
		}
	}

	decision := Decision{
		Allowed:     true,
		Destination: link.Destination,
		Reason:      ReasonOK,
	}

	if p.clicks == nil {
		return decision
	}

	clicks, maxClicks, err := p.clicks.Increment(ctx, link.Code)
	if err != nil {
		p.logger.Warn("click increment failed",
			zap.String("code", link.Code), zap.Error(err))
		return decision
	}

	if maxClicks > 0 && clicks >= maxClicks {
		decision.LimitReached = true
		decision.Reason = ReasonLimitReached
	}
	return decision
}

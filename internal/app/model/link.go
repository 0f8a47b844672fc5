package model

import "time"

// Link describes the core short-link entity stored in Postgres.
//
// A row is never deleted merely because it expired: the code stays reserved so
// a stale cache entry can never end up pointing at somebody else's destination.
type Link struct {
	Code            string     `db:"code" gorm:"primaryKey;size:32"`
	Destination     string     `db:"destination" gorm:"type:text;not null"`
	ExpiresAt       *time.Time `db:"expires_at" gorm:"index"`
	PasswordDigest  string     `db:"password_digest" gorm:"size:128"`
	MaxClicks       int64      `db:"max_clicks" gorm:"not null;default:0"`
	ClickCount      int64      `db:"click_count" gorm:"not null;default:0"`
	CreatorIdentity string     `db:"creator_identity" gorm:"size:64;index"`
	CreatedAt       time.Time  `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}

// Gated reports whether resolving the link requires an access-policy check.
// Gated links are kept out of the destination cache so the cached fast path
// can never bypass the gate.
func (l *Link) Gated() bool {
	return l.PasswordDigest != "" || l.MaxClicks > 0
}

// ExpiredAt reports whether the link is no longer servable at the given time,
// either because its expiry passed or its click ceiling is spent.
func (l *Link) ExpiredAt(now time.Time) bool {
	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return true
	}
	if l.MaxClicks > 0 && l.ClickCount >= l.MaxClicks {
		return true
	}
	return false
}

// RemainingTTL returns how long a cache entry for the link may live: the time
// until expiry, capped at ceiling. Zero means "no TTL" (the link never expires).
func (l *Link) RemainingTTL(now time.Time, ceiling time.Duration) time.Duration {
	if l.ExpiresAt == nil {
		return 0
	}
	remaining := l.ExpiresAt.Sub(now)
	if ceiling > 0 && remaining > ceiling {
		return ceiling
	}
	return remaining
}

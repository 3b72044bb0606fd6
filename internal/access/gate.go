// Package access evaluates entitlement state at read time. Expired
// subscriptions are never purged from the store; truth is always
// computed here against the current clock.
package access

import (
	"time"

	"oraclegate/internal/model"
)

// HasBasic reports lifetime basic access.
func HasBasic(p *model.Profile) bool {
	return p != nil && p.HasBasicAccess
}

// HasDev reports whether a dev subscription is active at the given
// time. A nil expiry means no expiry (admin-granted) and counts as
// active.
func HasDev(p *model.Profile, now time.Time) bool {
	if p == nil || p.DevTier == model.TierNone || p.DevTier == "" {
		return false
	}
	return p.DevExpiresAt == nil || p.DevExpiresAt.After(now)
}

// HasAnyPaid reports whether any paid capability is active. Basic and
// dev are independent grants; either one suffices.
func HasAnyPaid(p *model.Profile, now time.Time) bool {
	return HasBasic(p) || HasDev(p, now)
}

// Level is the display label for a profile's highest active tier:
// dev outranks basic outranks free.
func Level(p *model.Profile, now time.Time) string {
	switch {
	case HasDev(p, now):
		return "dev"
	case HasBasic(p):
		return "basic"
	default:
		return "free"
	}
}

package catalog

import (
	"fmt"
	"time"

	"oraclegate/internal/model"
)

// Entry is the price and validity window for one payment tier.
// Duration is zero for lifetime tiers.
type Entry struct {
	PriceUSD float64
	Duration time.Duration
}

var entries = map[model.PaymentType]Entry{
	model.PaymentBasic:    {PriceUSD: 1.99},
	model.PaymentShortrun: {PriceUSD: 1.99, Duration: 48 * time.Hour},
	model.PaymentStandard: {PriceUSD: 11.99, Duration: 15 * 24 * time.Hour},
	model.PaymentMonthly:  {PriceUSD: 19.99, Duration: 30 * 24 * time.Hour},
}

// Lookup returns the catalog entry for a tier.
func Lookup(tier model.PaymentType) (Entry, error) {
	entry, ok := entries[tier]
	if !ok {
		return Entry{}, fmt.Errorf("unknown payment tier: %s", tier)
	}
	return entry, nil
}

// DevDuration returns the validity window for a dev tier name as used
// by admin actions. Basic is not a dev tier.
func DevDuration(tier model.DevTier) (time.Duration, error) {
	entry, ok := entries[model.PaymentType(tier)]
	if !ok || entry.Duration == 0 {
		return 0, fmt.Errorf("invalid dev tier: %s", tier)
	}
	return entry.Duration, nil
}

// IsDevTier reports whether the payment type grants a timed dev
// subscription rather than lifetime basic access.
func IsDevTier(tier model.PaymentType) bool {
	entry, ok := entries[tier]
	return ok && entry.Duration > 0
}

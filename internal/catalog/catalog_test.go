package catalog

import (
	"testing"
	"time"

	"oraclegate/internal/model"
)

func TestLookupKnownTiers(t *testing.T) {
	cases := []struct {
		tier     model.PaymentType
		price    float64
		duration time.Duration
	}{
		{model.PaymentBasic, 1.99, 0},
		{model.PaymentShortrun, 1.99, 48 * time.Hour},
		{model.PaymentStandard, 11.99, 15 * 24 * time.Hour},
		{model.PaymentMonthly, 19.99, 30 * 24 * time.Hour},
	}

	for _, tc := range cases {
		entry, err := Lookup(tc.tier)
		if err != nil {
			t.Fatalf("lookup %s: %v", tc.tier, err)
		}
		if entry.PriceUSD != tc.price {
			t.Fatalf("%s price: got %v want %v", tc.tier, entry.PriceUSD, tc.price)
		}
		if entry.Duration != tc.duration {
			t.Fatalf("%s duration: got %v want %v", tc.tier, entry.Duration, tc.duration)
		}
	}
}

func TestLookupUnknownTier(t *testing.T) {
	if _, err := Lookup("platinum"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}

func TestDevDuration(t *testing.T) {
	d, err := DevDuration(model.TierShortrun)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 48*time.Hour {
		t.Fatalf("shortrun duration: got %v", d)
	}

	if _, err := DevDuration(model.TierNone); err == nil {
		t.Fatalf("expected error for tier none")
	}
	if _, err := DevDuration(model.DevTier("basic")); err == nil {
		t.Fatalf("expected error for basic as dev tier")
	}
}

func TestIsDevTier(t *testing.T) {
	if IsDevTier(model.PaymentBasic) {
		t.Fatalf("basic must not be a dev tier")
	}
	if !IsDevTier(model.PaymentMonthly) {
		t.Fatalf("monthly must be a dev tier")
	}
	if IsDevTier("bogus") {
		t.Fatalf("unknown tier must not be a dev tier")
	}
}

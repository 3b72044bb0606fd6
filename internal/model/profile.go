package model

import (
	"strings"
	"time"
)

// DevTier is the subscription class held by a profile.
type DevTier string

const (
	TierNone     DevTier = "none"
	TierShortrun DevTier = "shortrun"
	TierStandard DevTier = "standard"
	TierMonthly  DevTier = "monthly"
)

// Profile is the per-wallet entitlement record. Identity is the
// lowercase-normalized wallet address.
type Profile struct {
	ID                string     `json:"id"`
	WalletAddress     string     `json:"wallet_address"`
	Username          string     `json:"username,omitempty"`
	HasBasicAccess    bool       `json:"has_basic_access"`
	DevTier           DevTier    `json:"dev_tier"`
	DevExpiresAt      *time.Time `json:"dev_expires_at,omitempty"`
	PreferredLanguage string     `json:"preferred_language"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NormalizeAddress lowercases a wallet address for use as a store key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

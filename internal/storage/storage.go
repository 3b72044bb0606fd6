package storage

import (
	"context"
	"errors"
	"time"

	"oraclegate/internal/model"
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTx is returned when a payment insert collides with
	// an existing tx_hash. The unique constraint behind it is the
	// system's idempotency boundary.
	ErrDuplicateTx = errors.New("transaction already processed")
)

// ProfileStore holds one entitlement record per wallet address.
// Implementations must lowercase-normalize addresses on every access.
type ProfileStore interface {
	// GetOrCreateProfile returns the profile for a wallet, creating it
	// with all-false defaults on first connect. Safe under concurrent
	// first connects for the same wallet.
	GetOrCreateProfile(ctx context.Context, wallet string) (*model.Profile, error)
	// GetProfile returns ErrNotFound when the wallet has never connected.
	GetProfile(ctx context.Context, wallet string) (*model.Profile, error)
	// GrantBasic flips has_basic_access to true.
	GrantBasic(ctx context.Context, wallet string) error
	// SetDevTier overwrites the dev tier and its expiry. A nil expiry
	// means no expiry.
	SetDevTier(ctx context.Context, wallet string, tier model.DevTier, expiresAt *time.Time) error
	// SetDevExpiry replaces only the expiry timestamp.
	SetDevExpiry(ctx context.Context, wallet string, expiresAt time.Time) error
	// RevokeAccess clears basic access, dev tier, and expiry.
	RevokeAccess(ctx context.Context, wallet string) error
	// SetUsername sets the display name.
	SetUsername(ctx context.Context, wallet string, username string) error
	// ProfileStats returns total, basic-access, and dev-tier user counts.
	ProfileStats(ctx context.Context) (total, basic, dev int, err error)
}

// PaymentLedger is the append-only record of processed payments,
// keyed uniquely by transaction hash.
type PaymentLedger interface {
	// GetPayment returns ErrNotFound when the hash has not been processed.
	GetPayment(ctx context.Context, txHash string) (*model.PaymentRecord, error)
	// InsertPayment appends one record, assigning rec.ID and
	// rec.CreatedAt, and returns ErrDuplicateTx when the hash already
	// exists. The uniqueness check must be atomic against concurrent
	// inserts of the same hash.
	InsertPayment(ctx context.Context, rec *model.PaymentRecord) error
	// PaymentTotals returns the confirmed payment count and revenue sum.
	PaymentTotals(ctx context.Context) (count int, revenueUSD float64, err error)
}

// ChatLog is a sink for oracle replies into the chat event log.
type ChatLog interface {
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
}

// Package admin is the privileged mutation path. It bypasses payment
// verification entirely and is gated on a single configured wallet,
// re-checked on every call.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"oraclegate/internal/catalog"
	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

// ErrUnauthorized is returned when the caller wallet is not the
// configured admin wallet.
var ErrUnauthorized = errors.New("admin access required")

// Service executes admin actions against the profile store and the
// payment ledger's read paths.
type Service struct {
	profiles storage.ProfileStore
	ledger   storage.PaymentLedger
	logger   *zap.Logger

	adminWallet common.Address
	now         func() time.Time
}

// New builds the admin service. adminWallet is the distinguished
// wallet allowed to call every method.
func New(adminWallet string, profiles storage.ProfileStore, ledger storage.PaymentLedger, logger *zap.Logger) (*Service, error) {
	if !common.IsHexAddress(adminWallet) {
		return nil, fmt.Errorf("invalid admin wallet: %q", adminWallet)
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile store is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("payment ledger is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profiles:    profiles,
		ledger:      ledger,
		logger:      logger,
		adminWallet: common.HexToAddress(adminWallet),
		now:         time.Now,
	}, nil
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// authorize compares the caller against the configured admin wallet.
// Every entry point calls it; the admin endpoint is reachable outside
// any session flow, so prior state proves nothing.
func (s *Service) authorize(caller string) error {
	if !common.IsHexAddress(caller) || common.HexToAddress(caller) != s.adminWallet {
		return ErrUnauthorized
	}
	return nil
}

// ActivateBasic grants lifetime basic access to the target wallet.
func (s *Service) ActivateBasic(ctx context.Context, caller, target string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if _, err := s.profiles.GetOrCreateProfile(ctx, target); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	if err := s.profiles.GrantBasic(ctx, target); err != nil {
		return fmt.Errorf("activate basic: %w", err)
	}
	s.logger.Info("admin activated basic access", zap.String("target", model.NormalizeAddress(target)))
	return nil
}

// ActivateDev grants a dev tier to the target wallet with the same
// expiry computation as a purchase: now plus the catalog duration.
func (s *Service) ActivateDev(ctx context.Context, caller, target string, tier model.DevTier) (time.Time, error) {
	if err := s.authorize(caller); err != nil {
		return time.Time{}, err
	}
	duration, err := catalog.DevDuration(tier)
	if err != nil {
		return time.Time{}, err
	}
	if _, err := s.profiles.GetOrCreateProfile(ctx, target); err != nil {
		return time.Time{}, fmt.Errorf("ensure profile: %w", err)
	}

	expiresAt := s.now().Add(duration)
	if err := s.profiles.SetDevTier(ctx, target, tier, &expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("activate dev: %w", err)
	}
	s.logger.Info("admin activated dev tier",
		zap.String("target", model.NormalizeAddress(target)),
		zap.String("tier", string(tier)),
		zap.Time("expires_at", expiresAt))
	return expiresAt, nil
}

// RevokeAccess clears every entitlement on the target wallet. This is
// the only path that moves has_basic_access back to false.
func (s *Service) RevokeAccess(ctx context.Context, caller, target string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if err := s.profiles.RevokeAccess(ctx, target); err != nil {
		return fmt.Errorf("revoke access: %w", err)
	}
	s.logger.Info("admin revoked access", zap.String("target", model.NormalizeAddress(target)))
	return nil
}

// ExtendSubscription pushes the dev expiry out by the given number of
// days, stacking onto the later of now or the current expiry so an
// active subscription is never silently shortened.
func (s *Service) ExtendSubscription(ctx context.Context, caller, target string, days int) (time.Time, error) {
	if err := s.authorize(caller); err != nil {
		return time.Time{}, err
	}
	if days <= 0 {
		return time.Time{}, fmt.Errorf("days must be positive")
	}

	profile, err := s.profiles.GetProfile(ctx, target)
	if err != nil {
		return time.Time{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now()
	base := now
	if profile.DevExpiresAt != nil && profile.DevExpiresAt.After(now) {
		base = *profile.DevExpiresAt
	}
	newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := s.profiles.SetDevExpiry(ctx, target, newExpiry); err != nil {
		return time.Time{}, fmt.Errorf("extend subscription: %w", err)
	}
	s.logger.Info("admin extended subscription",
		zap.String("target", model.NormalizeAddress(target)),
		zap.Int("days", days),
		zap.Time("expires_at", newExpiry))
	return newExpiry, nil
}

// Stats aggregates user counts and confirmed revenue. Read-only.
func (s *Service) Stats(ctx context.Context, caller string) (*model.AdminStats, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}

	total, basic, dev, err := s.profiles.ProfileStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}
	count, revenue, err := s.ledger.PaymentTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment totals: %w", err)
	}

	return &model.AdminStats{
		TotalUsers:    total,
		BasicUsers:    basic,
		DevUsers:      dev,
		TotalPayments: count,
		TotalRevenue:  revenue,
	}, nil
}

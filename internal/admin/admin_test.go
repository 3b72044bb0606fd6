package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

const (
	adminAddr  = "0x8334966329B7F4b459633696a8Ca59118253bc89"
	targetAddr = "0x1111111111111111111111111111111111111111"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc, err := New(adminAddr, store, store, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.WithClock(func() time.Time { return testNow }), store
}

func TestAuthorizationRequiredOnEveryAction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	intruder := "0x9999999999999999999999999999999999999999"

	if err := svc.ActivateBasic(ctx, intruder, targetAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("activate basic: got %v", err)
	}
	if _, err := svc.ActivateDev(ctx, intruder, targetAddr, model.TierMonthly); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("activate dev: got %v", err)
	}
	if err := svc.RevokeAccess(ctx, intruder, targetAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoke: got %v", err)
	}
	if _, err := svc.ExtendSubscription(ctx, intruder, targetAddr, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("extend: got %v", err)
	}
	if _, err := svc.Stats(ctx, intruder); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stats: got %v", err)
	}
	if err := svc.ActivateBasic(ctx, "", targetAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty caller: got %v", err)
	}
}

func TestAdminWalletCaseInsensitive(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.ActivateBasic(ctx, "0x8334966329b7f4b459633696a8ca59118253bc89", targetAddr); err != nil {
		t.Fatalf("lowercase admin wallet rejected: %v", err)
	}
	p, err := store.GetProfile(ctx, targetAddr)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !p.HasBasicAccess {
		t.Fatalf("basic access not granted")
	}
}

func TestActivateDevComputesExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	expiresAt, err := svc.ActivateDev(ctx, adminAddr, targetAddr, model.TierStandard)
	if err != nil {
		t.Fatalf("activate dev: %v", err)
	}
	want := testNow.Add(15 * 24 * time.Hour)
	if !expiresAt.Equal(want) {
		t.Fatalf("expiry: got %v want %v", expiresAt, want)
	}

	p, _ := store.GetProfile(ctx, targetAddr)
	if p.DevTier != model.TierStandard || p.DevExpiresAt == nil || !p.DevExpiresAt.Equal(want) {
		t.Fatalf("profile mismatch: %+v", p)
	}
}

func TestActivateDevRejectsInvalidTier(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ActivateDev(context.Background(), adminAddr, targetAddr, model.TierNone); err == nil {
		t.Fatalf("expected error for tier none")
	}
}

func TestRevokeAccess(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.ActivateBasic(ctx, adminAddr, targetAddr); err != nil {
		t.Fatalf("activate basic: %v", err)
	}
	if _, err := svc.ActivateDev(ctx, adminAddr, targetAddr, model.TierMonthly); err != nil {
		t.Fatalf("activate dev: %v", err)
	}
	if err := svc.RevokeAccess(ctx, adminAddr, targetAddr); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	p, _ := store.GetProfile(ctx, targetAddr)
	if p.HasBasicAccess || p.DevTier != model.TierNone || p.DevExpiresAt != nil {
		t.Fatalf("revoke did not clear entitlements: %+v", p)
	}
}

func TestExtendSubscriptionFromFutureExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	future := testNow.Add(72 * time.Hour)
	if _, err := store.GetOrCreateProfile(ctx, targetAddr); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := store.SetDevTier(ctx, targetAddr, model.TierStandard, &future); err != nil {
		t.Fatalf("seed tier: %v", err)
	}

	newExpiry, err := svc.ExtendSubscription(ctx, adminAddr, targetAddr, 5)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	want := future.Add(5 * 24 * time.Hour)
	if !newExpiry.Equal(want) {
		t.Fatalf("extend must stack on future expiry: got %v want %v", newExpiry, want)
	}
}

func TestExtendSubscriptionFromPastExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	past := testNow.Add(-72 * time.Hour)
	if _, err := store.GetOrCreateProfile(ctx, targetAddr); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := store.SetDevTier(ctx, targetAddr, model.TierShortrun, &past); err != nil {
		t.Fatalf("seed tier: %v", err)
	}

	newExpiry, err := svc.ExtendSubscription(ctx, adminAddr, targetAddr, 5)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	want := testNow.Add(5 * 24 * time.Hour)
	if !newExpiry.Equal(want) {
		t.Fatalf("extend from lapsed expiry must start at now: got %v want %v", newExpiry, want)
	}
}

func TestStats(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.ActivateBasic(ctx, adminAddr, targetAddr); err != nil {
		t.Fatalf("activate basic: %v", err)
	}
	if _, err := svc.ActivateDev(ctx, adminAddr, "0x2222222222222222222222222222222222222222", model.TierMonthly); err != nil {
		t.Fatalf("activate dev: %v", err)
	}
	if err := store.InsertPayment(ctx, &model.PaymentRecord{
		TxHash:    "0xAAA",
		AmountUSD: 19.99,
		Status:    model.PaymentStatusConfirmed,
	}); err != nil {
		t.Fatalf("insert payment: %v", err)
	}

	stats, err := svc.Stats(ctx, adminAddr)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 2 || stats.BasicUsers != 1 || stats.DevUsers != 1 {
		t.Fatalf("user counts: %+v", stats)
	}
	if stats.TotalPayments != 1 || stats.TotalRevenue != 19.99 {
		t.Fatalf("payment totals: %+v", stats)
	}
}

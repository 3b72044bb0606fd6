package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"oraclegate/internal/chain"
	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

const (
	treasuryAddr = "0x8334966329B7F4b459633696a8Ca59118253bc89"
	userAddr     = "0x1111111111111111111111111111111111111111"
	otherAddr    = "0x2222222222222222222222222222222222222222"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testHash expands a one-byte marker into a full-length hash string.
func testHash(n byte) string {
	var h common.Hash
	h[common.HashLength-1] = n
	return h.Hex()
}

type fakeChain struct {
	txs      map[common.Hash]*chain.Transaction
	receipts map[common.Hash]*types.Receipt
	txErr    error
	rcptErr  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:      make(map[common.Hash]*chain.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return tx, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.rcptErr != nil {
		return nil, f.rcptErr
	}
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// addPayment registers a successful value transfer from sender to
// recipient for the given hash.
func (f *fakeChain) addPayment(txHash, from, to string, status uint64) {
	hash := common.HexToHash(txHash)
	toAddr := common.HexToAddress(to)
	f.txs[hash] = &chain.Transaction{
		Hash: hash,
		From: common.HexToAddress(from),
		To:   &toAddr,
	}
	f.receipts[hash] = &types.Receipt{Status: status}
}

func newTestVerifier(t *testing.T, reader ChainReader, store *storage.MemoryStore) *Verifier {
	t.Helper()
	v, err := New(Config{TreasuryWallet: treasuryAddr}, reader, store, store, nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v.WithClock(func() time.Time { return testNow })
}

func TestVerifyBasicPurchase(t *testing.T) {
	hash := testHash(0x01)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	res, verr := v.Verify(context.Background(), Request{
		TxHash:        hash,
		WalletAddress: userAddr,
		PaymentType:   "basic",
		AmountOver:    1.99,
	})
	if verr != nil {
		t.Fatalf("verify: %v", verr)
	}
	if res.PaymentID == "" {
		t.Fatalf("payment id must be assigned")
	}
	if res.PaymentType != model.PaymentBasic || res.ExpiresAt != nil {
		t.Fatalf("result mismatch: %+v", res)
	}

	p, err := store.GetProfile(context.Background(), userAddr)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !p.HasBasicAccess {
		t.Fatalf("basic access not granted")
	}
	if p.DevTier != model.TierNone {
		t.Fatalf("basic purchase must not touch dev tier")
	}

	rec, err := store.GetPayment(context.Background(), hash)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if rec.ID != res.PaymentID {
		t.Fatalf("ledger id %q does not match result id %q", rec.ID, res.PaymentID)
	}
	if rec.Status != model.PaymentStatusConfirmed || rec.AmountUSD != 1.99 {
		t.Fatalf("payment record mismatch: %+v", rec)
	}
	if rec.WalletAddress != model.NormalizeAddress(userAddr) {
		t.Fatalf("payer not normalized: %s", rec.WalletAddress)
	}
}

func TestVerifyDevPurchase(t *testing.T) {
	hash := testHash(0x02)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	res, verr := v.Verify(context.Background(), Request{
		TxHash:        hash,
		WalletAddress: userAddr,
		PaymentType:   "monthly",
		AmountOver:    19.99,
	})
	if verr != nil {
		t.Fatalf("verify: %v", verr)
	}

	want := testNow.Add(30 * 24 * time.Hour)
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
		t.Fatalf("expiry: got %v want %v", res.ExpiresAt, want)
	}

	p, _ := store.GetProfile(context.Background(), userAddr)
	if p.DevTier != model.TierMonthly {
		t.Fatalf("dev tier: got %s", p.DevTier)
	}
	if p.DevExpiresAt == nil || !p.DevExpiresAt.Equal(want) {
		t.Fatalf("profile expiry: got %v want %v", p.DevExpiresAt, want)
	}
}

func TestVerifyTierOverwriteNotStacking(t *testing.T) {
	first, second := testHash(0x03), testHash(0x04)
	fc := newFakeChain()
	fc.addPayment(first, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	fc.addPayment(second, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)
	ctx := context.Background()

	if _, verr := v.Verify(ctx, Request{TxHash: first, WalletAddress: userAddr, PaymentType: "standard"}); verr != nil {
		t.Fatalf("first purchase: %v", verr)
	}
	if _, verr := v.Verify(ctx, Request{TxHash: second, WalletAddress: userAddr, PaymentType: "monthly"}); verr != nil {
		t.Fatalf("second purchase: %v", verr)
	}

	p, _ := store.GetProfile(ctx, userAddr)
	if p.DevTier != model.TierMonthly {
		t.Fatalf("tier: got %s want monthly", p.DevTier)
	}
	want := testNow.Add(30 * 24 * time.Hour)
	if p.DevExpiresAt == nil || !p.DevExpiresAt.Equal(want) {
		t.Fatalf("expiry must be replaced, not extended: got %v want %v", p.DevExpiresAt, want)
	}
}

func TestVerifyDuplicateHash(t *testing.T) {
	hash := testHash(0x05)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)
	ctx := context.Background()

	res, verr := v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr != nil {
		t.Fatalf("first verify: %v", verr)
	}
	if res.PaymentID == "" {
		t.Fatalf("payment id must be assigned")
	}

	_, verr = v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindAlreadyProcessed {
		t.Fatalf("second verify: got %v want AlreadyProcessed", verr)
	}
	if verr.PaymentID != res.PaymentID {
		t.Fatalf("duplicate must report the original payment id: got %q want %q", verr.PaymentID, res.PaymentID)
	}
	if verr.Retryable() {
		t.Fatalf("AlreadyProcessed must not be retryable")
	}

	count, _, _ := store.PaymentTotals(ctx)
	if count != 1 {
		t.Fatalf("expected exactly one payment record, got %d", count)
	}
}

func TestVerifyDuplicateHashCaseVariant(t *testing.T) {
	hash := testHash(0xab)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)
	ctx := context.Background()

	res, verr := v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "monthly"})
	if verr != nil {
		t.Fatalf("first verify: %v", verr)
	}

	// Same transaction, uppercased spelling. It must collapse onto the
	// existing ledger row, not mint a second entitlement.
	upper := "0x" + strings.ToUpper(hash[2:])
	_, verr = v.Verify(ctx, Request{TxHash: upper, WalletAddress: userAddr, PaymentType: "monthly"})
	if verr == nil || verr.Kind != KindAlreadyProcessed {
		t.Fatalf("case variant: got %v want AlreadyProcessed", verr)
	}
	if verr.PaymentID != res.PaymentID {
		t.Fatalf("case variant must report the original payment id")
	}

	count, revenue, _ := store.PaymentTotals(ctx)
	if count != 1 {
		t.Fatalf("expected exactly one payment record, got %d", count)
	}
	if revenue != 19.99 {
		t.Fatalf("revenue counted twice: %v", revenue)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	fc := newFakeChain()
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)
	ctx := context.Background()

	cases := []struct {
		name   string
		txHash string
	}{
		{"no prefix", strings.TrimPrefix(testHash(0x06), "0x")},
		{"too short", "0x1234abcd"},
		{"too long", testHash(0x06) + "ff"},
		{"not hex", "0x" + strings.Repeat("zz", 32)},
	}

	for _, tc := range cases {
		_, verr := v.Verify(ctx, Request{TxHash: tc.txHash, WalletAddress: userAddr, PaymentType: "basic"})
		if verr == nil || verr.Kind != KindInvalidRequest {
			t.Fatalf("%s: got %v want InvalidRequest", tc.name, verr)
		}
	}
}

// skipPrecheckLedger hides existing rows from the step-1 lookup so the
// insert itself has to arbitrate, as it would when two requests race
// past the pre-check in separate processes.
type skipPrecheckLedger struct {
	*storage.MemoryStore
}

func (l *skipPrecheckLedger) GetPayment(ctx context.Context, txHash string) (*model.PaymentRecord, error) {
	return nil, storage.ErrNotFound
}

func TestVerifyDuplicateRaceAtInsert(t *testing.T) {
	hash := testHash(0x07)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	ledger := &skipPrecheckLedger{store}

	v, err := New(Config{TreasuryWallet: treasuryAddr}, fc, ledger, store, nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.WithClock(func() time.Time { return testNow })
	ctx := context.Background()

	if _, verr := v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"}); verr != nil {
		t.Fatalf("first verify: %v", verr)
	}
	_, verr := v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindAlreadyProcessed {
		t.Fatalf("race loser: got %v want AlreadyProcessed", verr)
	}

	count, _, _ := store.PaymentTotals(ctx)
	if count != 1 {
		t.Fatalf("expected exactly one payment record, got %d", count)
	}
}

// brokenProfiles reads normally but rejects every entitlement write.
type brokenProfiles struct {
	*storage.MemoryStore
}

func (p *brokenProfiles) GrantBasic(ctx context.Context, wallet string) error {
	return errors.New("profiles unavailable")
}

func (p *brokenProfiles) SetDevTier(ctx context.Context, wallet string, tier model.DevTier, expiresAt *time.Time) error {
	return errors.New("profiles unavailable")
}

func TestVerifyEntitlementWriteFailure(t *testing.T) {
	hash := testHash(0x08)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()

	v, err := New(Config{TreasuryWallet: treasuryAddr}, fc, store, &brokenProfiles{store}, nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.WithClock(func() time.Time { return testNow })
	ctx := context.Background()

	_, verr := v.Verify(ctx, Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindPersistenceFailure {
		t.Fatalf("got %v want PersistenceFailure", verr)
	}
	if verr.PaymentID == "" {
		t.Fatalf("persistence failure must carry the payment id for reconciliation")
	}
	if !verr.Retryable() {
		t.Fatalf("persistence failure must be retryable")
	}

	// The ledger row stands even though the profile write failed.
	rec, err := store.GetPayment(ctx, hash)
	if err != nil {
		t.Fatalf("ledger row must survive the failed profile write: %v", err)
	}
	if rec.ID != verr.PaymentID {
		t.Fatalf("ledger id %q does not match error payment id %q", rec.ID, verr.PaymentID)
	}
}

func TestVerifyWrongRecipient(t *testing.T) {
	hash := testHash(0x10)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, otherAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	_, verr := v.Verify(context.Background(), Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindWrongRecipient {
		t.Fatalf("got %v want WrongRecipient", verr)
	}
	assertNoSideEffects(t, store, hash, userAddr)
}

func TestVerifySenderMismatch(t *testing.T) {
	hash := testHash(0x11)
	fc := newFakeChain()
	fc.addPayment(hash, otherAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	_, verr := v.Verify(context.Background(), Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindSenderMismatch {
		t.Fatalf("got %v want SenderMismatch", verr)
	}
	assertNoSideEffects(t, store, hash, userAddr)
}

func TestVerifyRecipientCaseInsensitive(t *testing.T) {
	hash := testHash(0x12)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, "0x8334966329b7f4b459633696a8ca59118253bc89", types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	if _, verr := v.Verify(context.Background(), Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"}); verr != nil {
		t.Fatalf("case-only difference must not fail: %v", verr)
	}
}

func TestVerifyTransactionNotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, newFakeChain(), store)

	_, verr := v.Verify(context.Background(), Request{TxHash: testHash(0x13), WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindTransactionNotFound {
		t.Fatalf("got %v want TransactionNotFound", verr)
	}
}

func TestVerifyPendingThenConfirmed(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash(testHash(0x14))
	toAddr := common.HexToAddress(treasuryAddr)
	fc.txs[hash] = &chain.Transaction{Hash: hash, From: common.HexToAddress(userAddr), To: &toAddr}

	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)
	ctx := context.Background()
	req := Request{TxHash: testHash(0x14), WalletAddress: userAddr, PaymentType: "shortrun"}

	_, verr := v.Verify(ctx, req)
	if verr == nil || verr.Kind != KindPendingConfirmation {
		t.Fatalf("got %v want PendingConfirmation", verr)
	}
	if !verr.Retryable() {
		t.Fatalf("PendingConfirmation must be retryable")
	}
	assertNoSideEffects(t, store, testHash(0x14), userAddr)

	// Receipt lands; the retry proceeds normally.
	fc.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	res, verr := v.Verify(ctx, req)
	if verr != nil {
		t.Fatalf("retry after confirmation: %v", verr)
	}
	want := testNow.Add(48 * time.Hour)
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
		t.Fatalf("expiry: got %v want %v", res.ExpiresAt, want)
	}
}

func TestVerifyRevertedTransaction(t *testing.T) {
	hash := testHash(0x15)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusFailed)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	_, verr := v.Verify(context.Background(), Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindTransactionReverted {
		t.Fatalf("got %v want TransactionReverted", verr)
	}
	if verr.Retryable() {
		t.Fatalf("reverted must be terminal")
	}
	assertNoSideEffects(t, store, hash, userAddr)
}

func TestVerifyUnknownTier(t *testing.T) {
	hash := testHash(0x16)
	fc := newFakeChain()
	fc.addPayment(hash, userAddr, treasuryAddr, types.ReceiptStatusSuccessful)
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	_, verr := v.Verify(context.Background(), Request{TxHash: hash, WalletAddress: userAddr, PaymentType: "platinum"})
	if verr == nil || verr.Kind != KindUnknownTier {
		t.Fatalf("got %v want UnknownTier", verr)
	}
	assertNoSideEffects(t, store, hash, userAddr)
}

func TestVerifyMissingFields(t *testing.T) {
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, newFakeChain(), store)

	_, verr := v.Verify(context.Background(), Request{WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindInvalidRequest {
		t.Fatalf("got %v want InvalidRequest", verr)
	}
}

func TestVerifyRPCErrorIsRetryableNotFound(t *testing.T) {
	fc := newFakeChain()
	fc.txErr = errors.New("connection reset")
	store := storage.NewMemoryStore()
	v := newTestVerifier(t, fc, store)

	_, verr := v.Verify(context.Background(), Request{TxHash: testHash(0x17), WalletAddress: userAddr, PaymentType: "basic"})
	if verr == nil || verr.Kind != KindTransactionNotFound {
		t.Fatalf("got %v want TransactionNotFound", verr)
	}
}

func assertNoSideEffects(t *testing.T, store *storage.MemoryStore, txHash, wallet string) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.GetPayment(ctx, txHash); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("payment record must not exist, got err %v", err)
	}
	if p, err := store.GetProfile(ctx, wallet); err == nil {
		if p.HasBasicAccess || p.DevTier != model.TierNone {
			t.Fatalf("profile must be untouched: %+v", p)
		}
	}
}

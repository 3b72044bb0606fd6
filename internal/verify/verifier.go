// Package verify turns a client's claim "I paid for tier T with
// transaction H" into a durable entitlement, exactly once, using only
// facts read back from the chain.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"oraclegate/internal/catalog"
	"oraclegate/internal/chain"
	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

// ChainReader is the read surface of the JSON-RPC endpoint consumed
// by verification.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// AuditSink receives a copy of every confirmed payment record.
// Failures are logged, never surfaced.
type AuditSink interface {
	Append(rec *model.PaymentRecord) error
}

// Config holds runtime settings for the verifier.
type Config struct {
	TreasuryWallet string
	MaxRetries     int
	RetryBackoff   time.Duration
	RPCTimeout     time.Duration
}

// Request is a payment claim. AmountOver is client-reported and kept
// for audit only; it is not part of any check.
type Request struct {
	TxHash        string  `json:"tx_hash"`
	WalletAddress string  `json:"wallet_address"`
	PaymentType   string  `json:"payment_type"`
	AmountOver    float64 `json:"amount_over"`
}

// Result is a successful activation.
type Result struct {
	PaymentID   string
	PaymentType model.PaymentType
	ExpiresAt   *time.Time
	Message     string
}

// Verifier is the payment verification state machine.
type Verifier struct {
	chain    ChainReader
	ledger   storage.PaymentLedger
	profiles storage.ProfileStore
	audit    AuditSink
	logger   *zap.Logger

	treasury     common.Address
	maxRetries   int
	retryBackoff time.Duration
	rpcTimeout   time.Duration
	now          func() time.Time
}

// New builds a Verifier with its dependencies.
func New(cfg Config, reader ChainReader, ledger storage.PaymentLedger, profiles storage.ProfileStore, logger *zap.Logger) (*Verifier, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("payment ledger is nil")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile store is nil")
	}
	if !common.IsHexAddress(cfg.TreasuryWallet) {
		return nil, fmt.Errorf("invalid treasury wallet: %q", cfg.TreasuryWallet)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Verifier{
		chain:        reader,
		ledger:       ledger,
		profiles:     profiles,
		logger:       logger,
		treasury:     common.HexToAddress(cfg.TreasuryWallet),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		rpcTimeout:   timeout,
		now:          time.Now,
	}, nil
}

// WithAudit attaches a secondary audit sink for confirmed payments.
func (v *Verifier) WithAudit(sink AuditSink) *Verifier {
	v.audit = sink
	return v
}

// WithClock overrides the clock, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify runs the claim through the full check sequence. On success
// exactly one ledger row is appended and the profile entitlement is
// updated; any failure before the ledger insert leaves zero rows.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, *Error) {
	if req.TxHash == "" || req.WalletAddress == "" || req.PaymentType == "" {
		return nil, failf(KindInvalidRequest, "tx_hash, wallet_address, and payment_type are required")
	}
	if !common.IsHexAddress(req.WalletAddress) {
		return nil, failf(KindInvalidRequest, "invalid wallet address: %s", req.WalletAddress)
	}
	hash, err := parseTxHash(req.TxHash)
	if err != nil {
		return nil, failf(KindInvalidRequest, "invalid transaction hash: %s", req.TxHash)
	}
	// Canonical lowercase form. The ledger is keyed on this, never on
	// the client's spelling, so case variants of one hash collapse to
	// a single row.
	txHash := hash.Hex()

	logger := v.logger.With(
		zap.String("tx_hash", txHash),
		zap.String("wallet", model.NormalizeAddress(req.WalletAddress)),
		zap.String("payment_type", req.PaymentType),
	)

	// Fast-fail pre-check. The ledger insert below is the real arbiter.
	existing, err := v.ledger.GetPayment(ctx, txHash)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, failWrap(KindPersistenceFailure, err, "ledger lookup failed")
	}
	if existing != nil {
		logger.Info("payment already processed", zap.String("payment_id", existing.ID))
		return nil, &Error{
			Kind:      KindAlreadyProcessed,
			Message:   "payment already processed",
			PaymentID: existing.ID,
		}
	}

	tx, verr := v.fetchTransaction(ctx, hash)
	if verr != nil {
		return nil, verr
	}

	if tx.To == nil || *tx.To != v.treasury {
		logger.Warn("transaction recipient is not the treasury wallet")
		return nil, failf(KindWrongRecipient, "transaction recipient is not the correct payment address")
	}

	claimed := common.HexToAddress(req.WalletAddress)
	if tx.From != claimed {
		logger.Warn("transaction sender does not match claimed wallet",
			zap.String("sender", tx.From.Hex()))
		return nil, failf(KindSenderMismatch, "transaction sender does not match wallet address")
	}

	receipt, verr := v.fetchReceipt(ctx, hash)
	if verr != nil {
		return nil, verr
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.Warn("transaction reverted on chain")
		return nil, failf(KindTransactionReverted, "transaction failed on blockchain")
	}

	tier := model.PaymentType(req.PaymentType)
	entry, err := catalog.Lookup(tier)
	if err != nil {
		return nil, failf(KindUnknownTier, "unknown payment type: %s", req.PaymentType)
	}

	var expiresAt *time.Time
	if catalog.IsDevTier(tier) {
		t := v.now().Add(entry.Duration)
		expiresAt = &t
	}

	rec := &model.PaymentRecord{
		WalletAddress: model.NormalizeAddress(req.WalletAddress),
		TxHash:        txHash,
		PaymentType:   tier,
		AmountUSD:     entry.PriceUSD,
		AmountOver:    req.AmountOver,
		Status:        model.PaymentStatusConfirmed,
	}
	if err := v.ledger.InsertPayment(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateTx) {
			// Lost the race to a concurrent submission of the same
			// hash; the entitlement was granted by the winner.
			logger.Info("concurrent duplicate submission")
			return nil, failf(KindAlreadyProcessed, "payment already processed")
		}
		return nil, failWrap(KindPersistenceFailure, err, "failed to record payment")
	}
	logger.Info("payment recorded", zap.String("payment_id", rec.ID), zap.Float64("amount_usd", rec.AmountUSD))

	if v.audit != nil {
		if err := v.audit.Append(rec); err != nil {
			logger.Warn("audit append failed", zap.Error(err))
		}
	}

	// The ledger row stands from here on. A failed entitlement write
	// is reported for manual reconciliation, never rolled back.
	if err := v.applyEntitlement(ctx, rec.WalletAddress, tier, expiresAt); err != nil {
		logger.Error("entitlement update failed after payment was recorded",
			zap.String("payment_id", rec.ID), zap.Error(err))
		return nil, &Error{
			Kind:      KindPersistenceFailure,
			Message:   "payment recorded but entitlement update failed",
			PaymentID: rec.ID,
			cause:     err,
		}
	}

	logger.Info("entitlement activated", zap.String("payment_id", rec.ID))
	return &Result{
		PaymentID:   rec.ID,
		PaymentType: tier,
		ExpiresAt:   expiresAt,
		Message:     activationMessage(tier),
	}, nil
}

func (v *Verifier) fetchTransaction(ctx context.Context, hash common.Hash) (*chain.Transaction, *Error) {
	var tx *chain.Transaction
	err := withRetry(ctx, v.maxRetries, v.retryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, v.rpcTimeout)
		defer cancel()

		fetched, err := v.chain.TransactionByHash(callCtx, hash)
		if errors.Is(err, ethereum.NotFound) {
			tx = nil
			return nil
		}
		if err != nil {
			return err
		}
		tx = fetched
		return nil
	})
	if err != nil {
		// Endpoint trouble is indistinguishable from a slow-to-appear
		// transaction; report not-found so the caller retries later.
		return nil, failWrap(KindTransactionNotFound, err, "transaction lookup failed")
	}
	if tx == nil {
		return nil, failf(KindTransactionNotFound, "transaction not found on blockchain")
	}
	return tx, nil
}

func (v *Verifier) fetchReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, *Error) {
	var receipt *types.Receipt
	err := withRetry(ctx, v.maxRetries, v.retryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, v.rpcTimeout)
		defer cancel()

		fetched, err := v.chain.TransactionReceipt(callCtx, hash)
		if errors.Is(err, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		if err != nil {
			return err
		}
		receipt = fetched
		return nil
	})
	if err != nil {
		return nil, failWrap(KindPendingConfirmation, err, "receipt lookup failed")
	}
	if receipt == nil {
		return nil, failf(KindPendingConfirmation, "transaction not yet confirmed, please wait")
	}
	return receipt, nil
}

func (v *Verifier) applyEntitlement(ctx context.Context, wallet string, tier model.PaymentType, expiresAt *time.Time) error {
	// A paid wallet may not have connected yet; make sure the row exists.
	if _, err := v.profiles.GetOrCreateProfile(ctx, wallet); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	if tier == model.PaymentBasic {
		if err := v.profiles.GrantBasic(ctx, wallet); err != nil {
			return fmt.Errorf("grant basic access: %w", err)
		}
		return nil
	}

	// Buying a second dev tier replaces the prior one, including its
	// expiry. Durations never stack.
	if err := v.profiles.SetDevTier(ctx, wallet, model.DevTier(tier), expiresAt); err != nil {
		return fmt.Errorf("set dev tier: %w", err)
	}
	return nil
}

// parseTxHash strictly validates a transaction hash string.
// common.HexToHash silently pads or truncates, so decode and
// length-check explicitly before trusting the input.
func parseTxHash(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash: %s", input)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid tx hash length: %s", input)
	}
	return common.BytesToHash(data), nil
}

func activationMessage(tier model.PaymentType) string {
	if tier == model.PaymentBasic {
		return "Basic Oracle activated successfully!"
	}
	return fmt.Sprintf("DEV %s activated successfully!", tier)
}

package verify

import "fmt"

// FailureKind is the closed set of verification outcomes surfaced to
// callers. Only PendingConfirmation and PersistenceFailure are worth
// retrying with the same hash.
type FailureKind string

const (
	KindInvalidRequest      FailureKind = "invalid_request"
	KindAlreadyProcessed    FailureKind = "already_processed"
	KindTransactionNotFound FailureKind = "transaction_not_found"
	KindWrongRecipient      FailureKind = "wrong_recipient"
	KindSenderMismatch      FailureKind = "sender_mismatch"
	KindPendingConfirmation FailureKind = "pending_confirmation"
	KindTransactionReverted FailureKind = "transaction_reverted"
	KindUnknownTier         FailureKind = "unknown_tier"
	KindPersistenceFailure  FailureKind = "persistence_failure"
)

// Error is a verification failure with its kind. PaymentID is set for
// AlreadyProcessed (the original grant) and for partial failures where
// the ledger row exists but the entitlement write failed.
type Error struct {
	Kind      FailureKind
	Message   string
	PaymentID string
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether resubmitting the same hash can succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindPendingConfirmation || e.Kind == KindPersistenceFailure
}

func failf(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func failWrap(kind FailureKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

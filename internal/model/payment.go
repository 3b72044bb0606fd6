package model

import "time"

// PaymentType is the purchased tier identifier.
type PaymentType string

const (
	PaymentBasic    PaymentType = "basic"
	PaymentShortrun PaymentType = "shortrun"
	PaymentStandard PaymentType = "standard"
	PaymentMonthly  PaymentType = "monthly"
)

// PaymentStatusConfirmed is the only status this service ever writes:
// unconfirmed or failed attempts never produce a record.
const PaymentStatusConfirmed = "confirmed"

// PaymentRecord is one processed on-chain payment. TxHash is unique
// across all time and is the idempotency guard for verification.
type PaymentRecord struct {
	ID            string      `json:"id"`
	WalletAddress string      `json:"wallet_address"`
	TxHash        string      `json:"tx_hash"`
	PaymentType   PaymentType `json:"payment_type"`
	AmountUSD     float64     `json:"amount_usd"`
	AmountOver    float64     `json:"amount_over"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

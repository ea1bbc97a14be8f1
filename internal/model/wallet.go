package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowWallet is the platform-wide escrow account. There is exactly one.
type EscrowWallet struct {
	TotalHeld       decimal.Decimal `json:"total_held"`
	TotalReleased   decimal.Decimal `json:"total_released"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WalletTxType classifies ledger entries.
type WalletTxType string

const (
	TxDeposit    WalletTxType = "deposit"
	TxRelease    WalletTxType = "release"
	TxCommission WalletTxType = "commission"
	TxSLAPenalty WalletTxType = "sla_penalty"
	TxRefund     WalletTxType = "refund"
)

// WalletTransaction is an append-only ledger row.
type WalletTransaction struct {
	ID          string          `json:"id"`
	Type        WalletTxType    `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	BookingID   string          `json:"booking_id"`
	PaymentID   string          `json:"payment_id"`
	ProviderID  *uint64         `json:"provider_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Deposit is the input for moving a confirmed payment into escrow.
type Deposit struct {
	PaymentID         string
	BookingID         string
	ExternalID        string
	CustomerChatToken string
	TransactionID     string
	At                time.Time
}

// Settlement is the computed split applied when escrow is released.
type Settlement struct {
	PaymentID        string          `json:"payment_id"`
	BookingID        string          `json:"booking_id"`
	ProviderID       uint64          `json:"provider_id"`
	Amount           decimal.Decimal `json:"amount"`
	TipAmount        decimal.Decimal `json:"tip_amount"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	SLAPenalty       decimal.Decimal `json:"sla_penalty"`
	ProviderPayout   decimal.Decimal `json:"provider_payout"`
	At               time.Time       `json:"at"`

	// TransactionIDs are pre-generated ids for release, commission and
	// sla_penalty rows in that order.
	TransactionIDs [3]string `json:"-"`
}

// Refund is the input for returning held escrow to the customer.
type Refund struct {
	PaymentID     string
	BookingID     string
	TransactionID string
	At            time.Time
}

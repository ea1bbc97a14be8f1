package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors payments.status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// EscrowStatus mirrors payments.escrow_status.
type EscrowStatus string

const (
	EscrowAwaiting EscrowStatus = "awaiting"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// Payment is the customer's payment for a booking.
type Payment struct {
	ID                    string          `json:"id"`
	Reference             string          `json:"reference"`
	BookingID             string          `json:"booking_id"`
	CustomerID            uint64          `json:"customer_id"`
	ProviderID            uint64          `json:"provider_id"`
	Amount                decimal.Decimal `json:"amount"`
	TipAmount             decimal.Decimal `json:"tip_amount"`
	Currency              string          `json:"currency"`
	CommissionRate        decimal.Decimal `json:"commission_rate"`
	CommissionAmount      decimal.Decimal `json:"commission_amount"`
	ProviderPayout        decimal.Decimal `json:"provider_payout"`
	Status                PaymentStatus   `json:"status"`
	EscrowStatus          EscrowStatus    `json:"escrow_status"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	ReleasedAt            *time.Time      `json:"released_at,omitempty"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the payment.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.PaidAt = cloneTime(p.PaidAt)
	c.ReleasedAt = cloneTime(p.ReleasedAt)
	c.RefundedAt = cloneTime(p.RefundedAt)
	return &c
}

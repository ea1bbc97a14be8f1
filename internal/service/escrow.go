package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
)

var tracer = otel.Tracer("github.com/Spana-App/SPANA-SERVER-sub001/internal/service")

// EscrowLedger moves customer money into, out of and back from escrow.
// Every movement is idempotent: the store applies it only while the payment
// is still in the expected state.
type EscrowLedger struct {
	payments PaymentStore
	bookings BookingStore
	pricing  PricingEngine
	now      func() time.Time
}

// NewEscrowLedger wires a ledger over the given stores.
func NewEscrowLedger(payments PaymentStore, bookings BookingStore, pricing PricingEngine, now func() time.Time) *EscrowLedger {
	if now == nil {
		now = time.Now
	}
	return &EscrowLedger{payments: payments, bookings: bookings, pricing: pricing, now: now}
}

// Deposit marks a gateway-confirmed payment as held. It reports false when
// the payment had already been deposited.
func (l *EscrowLedger) Deposit(ctx context.Context, paymentID, bookingID, externalID, chatToken string) (bool, error) {
	ctx, span := tracer.Start(ctx, "EscrowLedger.Deposit", trace.WithAttributes(
		attribute.String("payment.id", paymentID), attribute.String("booking.id", bookingID)))
	defer span.End()

	applied, err := l.payments.ApplyDeposit(ctx, model.Deposit{
		PaymentID:         paymentID,
		BookingID:         bookingID,
		ExternalID:        externalID,
		CustomerChatToken: chatToken,
		TransactionID:     uuid.NewString(),
		At:                l.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return false, mapStoreErr(err, "payment")
	}
	if applied {
		slog.InfoContext(ctx, "escrow_deposited", "payment_id", paymentID, "booking_id", bookingID)
	}
	return applied, nil
}

// Release pays out a held payment to the provider, keeping commission and
// the booking's SLA penalty. A payment that is not held is left untouched
// and nil is returned.
func (l *EscrowLedger) Release(ctx context.Context, paymentID, bookingID string) (*model.Settlement, error) {
	ctx, span := tracer.Start(ctx, "EscrowLedger.Release", trace.WithAttributes(
		attribute.String("payment.id", paymentID), attribute.String("booking.id", bookingID)))
	defer span.End()

	p, err := l.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, mapStoreErr(err, "payment")
	}
	if p.EscrowStatus != model.EscrowHeld {
		return nil, nil
	}
	b, err := l.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, mapStoreErr(err, "booking")
	}

	s := l.pricing.Settle(p, b.SLAPenaltyAmount)
	s.BookingID = bookingID
	s.At = l.now().UTC()
	s.TransactionIDs = [3]string{uuid.NewString(), uuid.NewString(), uuid.NewString()}

	applied, err := l.payments.ApplyRelease(ctx, s)
	if err != nil {
		span.RecordError(err)
		return nil, mapStoreErr(err, "payment")
	}
	if !applied {
		return nil, nil
	}
	slog.InfoContext(ctx, "escrow_released",
		"payment_id", paymentID,
		"booking_id", bookingID,
		"provider_payout", s.ProviderPayout.String(),
		"commission", s.CommissionAmount.String(),
		"sla_penalty", s.SLAPenalty.String(),
	)
	return &s, nil
}

// Refund returns a held payment to the customer. It reports false when the
// payment was not held.
func (l *EscrowLedger) Refund(ctx context.Context, paymentID, bookingID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "EscrowLedger.Refund", trace.WithAttributes(
		attribute.String("payment.id", paymentID), attribute.String("booking.id", bookingID)))
	defer span.End()

	applied, err := l.payments.ApplyRefund(ctx, model.Refund{
		PaymentID:     paymentID,
		BookingID:     bookingID,
		TransactionID: uuid.NewString(),
		At:            l.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return false, mapStoreErr(err, "payment")
	}
	if applied {
		slog.InfoContext(ctx, "escrow_refunded", "payment_id", paymentID, "booking_id", bookingID)
	}
	return applied, nil
}

// Wallet returns the platform escrow totals.
func (l *EscrowLedger) Wallet(ctx context.Context) (model.EscrowWallet, error) {
	return l.payments.GetEscrowWallet(ctx)
}

// Transactions lists ledger rows for a booking, oldest first.
func (l *EscrowLedger) Transactions(ctx context.Context, bookingID string) ([]model.WalletTransaction, error) {
	return l.payments.ListWalletTransactions(ctx, bookingID)
}

func mapStoreErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(what)
	}
	return err
}

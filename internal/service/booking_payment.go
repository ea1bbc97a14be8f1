package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// PaymentInput is the customer's request to pay for a booking. One of
// CardToken or SourceID is passed through to the gateway.
type PaymentInput struct {
	Tip       decimal.Decimal
	CardToken string
	SourceID  string
}

// PaymentResult is the payment record and the gateway's answer.
type PaymentResult struct {
	Payment *model.Payment `json:"payment"`
	Intent  *Intent        `json:"intent"`
}

// PaymentConfirmation identifies a payment the gateway reported as paid.
type PaymentConfirmation struct {
	BookingID  string
	PaymentID  string
	ExternalID string
}

// InitiatePayment creates (or reuses) the booking's pending payment and asks
// the gateway to collect it. A pending payment is reused only when the tip
// is unchanged. Gateway failures are returned to the caller.
func (s *BookingService) InitiatePayment(ctx context.Context, actor model.Actor, bookingID string, in PaymentInput) (*PaymentResult, error) {
	ctx, span := spanBooking(ctx, "BookingService.InitiatePayment", bookingID)
	defer span.End()

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleCustomer || b.CustomerID != actor.UserID {
		return nil, forbidden("only the booking's customer can pay")
	}
	if b.Status != model.StatusPendingPayment || b.PaymentStatus != model.PaymentPending {
		return nil, invalidState("pay", b, "booking is not awaiting payment")
	}
	if in.Tip.IsNegative() {
		return nil, invalidField("tip", "must not be negative")
	}
	if strings.TrimSpace(in.CardToken) == "" && strings.TrimSpace(in.SourceID) == "" {
		return nil, invalidField("card_token", "card_token or source_id is required")
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: payment gateway is not configured", ErrUpstream)
	}

	p, err := s.payments.FindPendingPayment(ctx, b.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if p, err = s.newPayment(ctx, b, in.Tip); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !p.TipAmount.Equal(in.Tip.Round(2)):
		// A new tip is a new amount. The old payment stays pending; should
		// it still settle, ConfirmPayment refunds whichever arrives second.
		slog.InfoContext(ctx, "payment_superseded", "booking_id", b.ID, "payment_id", p.ID)
		if p, err = s.newPayment(ctx, b, in.Tip); err != nil {
			return nil, err
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		BookingID: b.ID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		CardToken: strings.TrimSpace(in.CardToken),
		SourceID:  strings.TrimSpace(in.SourceID),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: create payment intent: %v", ErrUpstream, err)
	}
	if intent.ExternalID != "" {
		if err := s.payments.SetExternalTransaction(ctx, p.ID, intent.ExternalID); err != nil {
			return nil, err
		}
		p.ExternalTransactionID = intent.ExternalID
	}
	s.logActivity(ctx, actor.UserID, "payment_initiated", b.ID, map[string]any{"payment_id": p.ID, "amount": p.Amount})

	if intent.Succeeded {
		if _, err := s.ConfirmPayment(ctx, PaymentConfirmation{BookingID: b.ID, PaymentID: p.ID, ExternalID: intent.ExternalID}); err != nil {
			return nil, err
		}
		if fresh, err := s.payments.GetPayment(ctx, p.ID); err == nil {
			p = fresh
		}
	}
	return &PaymentResult{Payment: p, Intent: intent}, nil
}

func (s *BookingService) newPayment(ctx context.Context, b *model.Booking, tip decimal.Decimal) (*model.Payment, error) {
	n, err := s.seq.Next(ctx, "payment")
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tip = tip.Round(2)
	p := &model.Payment{
		ID:             uuid.NewString(),
		Reference:      utils.FormatReference(s.paymentPrefix, n),
		BookingID:      b.ID,
		CustomerID:     b.CustomerID,
		ProviderID:     b.ProviderID,
		Amount:         b.CalculatedPrice.Add(tip),
		TipAmount:      tip,
		Currency:       s.currency,
		CommissionRate: s.pricing.CommissionRate,
		Status:         model.PaymentStatusPending,
		EscrowStatus:   model.EscrowAwaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfirmPayment moves a gateway-confirmed payment into escrow. Redelivery
// of the same confirmation is harmless: the deposit is keyed by payment id
// and applied at most once.
func (s *BookingService) ConfirmPayment(ctx context.Context, c PaymentConfirmation) (*model.Booking, error) {
	ctx, span := spanBooking(ctx, "BookingService.ConfirmPayment", c.BookingID)
	defer span.End()

	p, err := s.payments.GetPayment(ctx, c.PaymentID)
	if err != nil {
		return nil, mapStoreErr(err, "payment")
	}
	if c.BookingID != "" && p.BookingID != c.BookingID {
		return nil, invalidField("booking_id", "does not match the payment")
	}

	token, err := utils.NewChatToken()
	if err != nil {
		return nil, err
	}
	applied, err := s.ledger.Deposit(ctx, p.ID, p.BookingID, c.ExternalID, token)
	if err != nil {
		return nil, err
	}
	b, err := s.load(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return b, nil
	}

	if b.PaymentID == nil || *b.PaymentID != p.ID {
		// the booking is already backed by another payment
		slog.WarnContext(ctx, "duplicate_payment_refunded", "booking_id", b.ID, "payment_id", p.ID)
		if _, err := s.ledger.Refund(ctx, p.ID, b.ID); err != nil {
			return nil, err
		}
		s.emit(ctx, b.CustomerID, "payment-refunded", map[string]any{
			"booking_id": b.ID,
			"payment_id": p.ID,
			"reason":     "duplicate payment",
		})
		s.logActivity(ctx, b.CustomerID, "duplicate_payment_refunded", b.ID, map[string]any{"payment_id": p.ID})
		return s.load(ctx, b.ID)
	}

	if b.Status == model.StatusCancelled {
		// paid after cancellation: hand the money straight back
		if _, err := s.ledger.Refund(ctx, p.ID, b.ID); err != nil {
			return nil, err
		}
		s.emit(ctx, b.CustomerID, "payment-refunded", map[string]any{"booking_id": b.ID, "payment_id": p.ID})
		return s.load(ctx, b.ID)
	}

	s.step(ctx, b.ID, model.StepPaymentReceived, model.StepCompleted)
	s.emit(ctx, b.ProviderID, "new-paid-booking", map[string]any{
		"booking_id":       b.ID,
		"reference":        b.Reference,
		"calculated_price": b.CalculatedPrice,
	})
	s.emit(ctx, b.CustomerID, "payment-confirmed", map[string]any{"booking_id": b.ID, "payment_id": p.ID})
	s.logActivity(ctx, b.CustomerID, "payment_confirmed", b.ID, map[string]any{"payment_id": p.ID})
	return b, nil
}

// PaymentFailed tells the customer the gateway declined their payment. The
// booking stays awaiting payment.
func (s *BookingService) PaymentFailed(ctx context.Context, bookingID, paymentID, reason string) error {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "payment_failed", "booking_id", bookingID, "payment_id", paymentID, "reason", reason)
	s.emit(ctx, b.CustomerID, "payment-failed", map[string]any{
		"booking_id": bookingID,
		"payment_id": paymentID,
		"reason":     reason,
	})
	s.logActivity(ctx, b.CustomerID, "payment_failed", bookingID, map[string]any{"reason": reason})
	return nil
}

// HandlePaymentWebhook verifies a gateway event with the gateway itself and
// dispatches it.
func (s *BookingService) HandlePaymentWebhook(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return invalidField("id", "event id is required")
	}
	if s.gateway == nil {
		return fmt.Errorf("%w: payment gateway is not configured", ErrUpstream)
	}
	ev, err := s.gateway.VerifyEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("%w: verify event: %v", ErrUpstream, err)
	}
	if !ev.Relevant {
		return nil
	}
	if ev.BookingID == "" || ev.PaymentID == "" {
		slog.WarnContext(ctx, "webhook_missing_metadata", "event_id", eventID)
		return nil
	}
	if ev.Succeeded {
		_, err := s.ConfirmPayment(ctx, PaymentConfirmation{
			BookingID:  ev.BookingID,
			PaymentID:  ev.PaymentID,
			ExternalID: ev.ExternalID,
		})
		return err
	}
	return s.PaymentFailed(ctx, ev.BookingID, ev.PaymentID, ev.FailureReason)
}

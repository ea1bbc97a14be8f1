package service

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// AcceptBookingRequest lets the booking's provider take a paid request.
func (s *BookingService) AcceptBookingRequest(ctx context.Context, actor model.Actor, id string) (*BookingView, error) {
	const op = "accept"
	ctx, span := spanBooking(ctx, "BookingService.AcceptBookingRequest", id)
	defer span.End()

	b, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != model.PaymentPaidToEscrow {
		return nil, invalidState(op, b, "payment must be held in escrow before accepting")
	}
	if b.RequestStatus != model.RequestPending || b.Status != model.StatusPendingAcceptance {
		return nil, invalidState(op, b, "request already processed")
	}

	token, err := utils.NewChatToken()
	if err != nil {
		return nil, err
	}
	prev := b.State()
	b.RequestStatus = model.RequestAccepted
	b.Status = model.StatusConfirmed
	b.ProviderChatToken = token
	chatReady := b.CustomerChatToken != ""
	if chatReady {
		b.ChatActive = true
	}
	if err := s.commit(ctx, op, b, prev); err != nil {
		return nil, err
	}

	s.step(ctx, b.ID, model.StepProviderAssigned, model.StepCompleted)
	s.emit(ctx, b.CustomerID, "booking-accepted", map[string]any{"booking_id": b.ID, "reference": b.Reference})
	if chatReady {
		s.emit(ctx, b.CustomerID, "chat-ready", map[string]any{"booking_id": b.ID, "chat_token": b.CustomerChatToken})
		s.emit(ctx, b.ProviderID, "chat-ready", map[string]any{"booking_id": b.ID, "chat_token": b.ProviderChatToken})
	}
	s.logActivity(ctx, actor.UserID, "booking_accepted", b.ID, nil)
	return s.view(ctx, b, actor), nil
}

// DeclineBookingRequest lets the provider turn a request down. Any escrow
// stays held; the refund happens through CancelBooking.
func (s *BookingService) DeclineBookingRequest(ctx context.Context, actor model.Actor, id, reason string) (*BookingView, error) {
	const op = "decline"
	ctx, span := spanBooking(ctx, "BookingService.DeclineBookingRequest", id)
	defer span.End()

	b, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.RequestStatus != model.RequestPending || b.Status.Terminal() {
		return nil, invalidState(op, b, "request already processed")
	}

	now := s.now().UTC()
	prev := b.State()
	b.RequestStatus = model.RequestDeclined
	b.Status = model.StatusCancelled
	b.DeclineReason = strings.TrimSpace(reason)
	b.CancelledAt = &now
	b.CancelledBy = &actor.UserID
	b.ChatActive = false
	if err := s.commit(ctx, op, b, prev); err != nil {
		return nil, err
	}

	if b.PaymentStatus == model.PaymentPaidToEscrow {
		slog.WarnContext(ctx, "declined_booking_holds_escrow", "booking_id", b.ID)
	}
	s.emit(ctx, b.CustomerID, "booking-declined", map[string]any{"booking_id": b.ID, "reason": b.DeclineReason})
	s.logActivity(ctx, actor.UserID, "booking_declined", b.ID, map[string]any{"reason": b.DeclineReason})
	return s.view(ctx, b, actor), nil
}

// StartBooking moves a confirmed booking in progress once the proximity
// gate has opened.
func (s *BookingService) StartBooking(ctx context.Context, actor model.Actor, id string) (*BookingView, error) {
	const op = "start"
	ctx, span := spanBooking(ctx, "BookingService.StartBooking", id)
	defer span.End()

	b, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch {
	case b.RequestStatus != model.RequestAccepted:
		return nil, invalidState(op, b, "request has not been accepted")
	case b.PaymentStatus != model.PaymentPaidToEscrow:
		return nil, invalidState(op, b, "payment is not held in escrow")
	case !b.CanStartJob:
		return nil, invalidState(op, b, "provider has not been with the customer long enough to start")
	case b.Status != model.StatusConfirmed:
		return nil, invalidState(op, b, "booking is not confirmed")
	}

	now := s.now().UTC()
	prev := b.State()
	b.Status = model.StatusInProgress
	b.StartedAt = &now
	if err := s.commit(ctx, op, b, prev); err != nil {
		return nil, err
	}

	s.step(ctx, b.ID, model.StepProviderEnRoute, model.StepCompleted)
	s.step(ctx, b.ID, model.StepServiceProgress, model.StepInProgress)
	s.emit(ctx, b.CustomerID, "booking-started", map[string]any{"booking_id": b.ID, "started_at": now})
	s.logActivity(ctx, actor.UserID, "booking_started", b.ID, nil)
	return s.view(ctx, b, actor), nil
}

// CompleteBooking finishes the job, applies any SLA penalty and releases
// escrow. Calling it again on a completed booking whose escrow is still
// held retries the release only.
func (s *BookingService) CompleteBooking(ctx context.Context, actor model.Actor, id string) (*BookingView, error) {
	const op = "complete"
	ctx, span := spanBooking(ctx, "BookingService.CompleteBooking", id)
	defer span.End()

	b, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	retry := b.Status == model.StatusCompleted && b.PaymentStatus == model.PaymentPaidToEscrow
	if !retry {
		if b.StartedAt == nil || b.Status != model.StatusInProgress {
			return nil, invalidState(op, b, "booking has not been started")
		}
		now := s.now().UTC()
		actual := int(math.Ceil(now.Sub(*b.StartedAt).Minutes()))
		if actual < 0 {
			actual = 0
		}
		breached, penalty := s.pricing.SLAPenalty(b.CalculatedPrice, b.EstimatedDurationMinutes, actual)

		prev := b.State()
		b.Status = model.StatusCompleted
		b.CompletedAt = &now
		b.ActualDurationMinutes = actual
		b.SLABreached = breached
		b.SLAPenaltyAmount = penalty
		b.ChatActive = false
		b.ChatTerminatedAt = &now
		if err := s.commit(ctx, op, b, prev); err != nil {
			return nil, err
		}
		s.step(ctx, b.ID, model.StepServiceProgress, model.StepCompleted)
		s.step(ctx, b.ID, model.StepServiceCompleted, model.StepCompleted)
		s.logActivity(ctx, actor.UserID, "booking_completed", b.ID, map[string]any{
			"actual_duration_minutes": actual,
			"sla_breached":            breached,
		})
	}

	var settlement *model.Settlement
	if b.PaymentID != nil {
		p, err := s.payments.GetPayment(ctx, *b.PaymentID)
		if err != nil {
			return nil, mapStoreErr(err, "payment")
		}
		if p.EscrowStatus == model.EscrowHeld {
			if settlement, err = s.ledger.Release(ctx, p.ID, b.ID); err != nil {
				return nil, err
			}
		}
	}

	fresh, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, fresh.CustomerID, "booking-completed", map[string]any{
		"booking_id":   fresh.ID,
		"sla_breached": fresh.SLABreached,
	})
	if settlement != nil {
		s.emit(ctx, fresh.ProviderID, "payment-released", map[string]any{
			"booking_id":  fresh.ID,
			"payout":      settlement.ProviderPayout,
			"sla_penalty": settlement.SLAPenalty,
		})
	}

	v := s.view(ctx, fresh, actor)
	if fresh.PaymentID != nil {
		if p, err := s.payments.GetPayment(ctx, *fresh.PaymentID); err == nil {
			v.Payment = p
		}
	}
	return v, nil
}

// CancelBooking cancels a non-terminal booking on behalf of either party and
// refunds held escrow. A booking that is already cancelled but still holds
// escrow, as after a decline, gets its refund and no other change.
func (s *BookingService) CancelBooking(ctx context.Context, actor model.Actor, id, reason string) (*BookingView, error) {
	const op = "cancel"
	ctx, span := spanBooking(ctx, "BookingService.CancelBooking", id)
	defer span.End()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(b, actor) {
		return nil, forbidden("not a party to this booking")
	}

	pendingRefund := b.Status == model.StatusCancelled && b.PaymentStatus == model.PaymentPaidToEscrow
	switch {
	case b.Status == model.StatusCompleted:
		return nil, invalidState(op, b, "booking is already completed")
	case b.Status == model.StatusCancelled && !pendingRefund:
		return nil, invalidState(op, b, "booking is already cancelled")
	}

	if !pendingRefund {
		now := s.now().UTC()
		prev := b.State()
		b.Status = model.StatusCancelled
		b.CancelReason = strings.TrimSpace(reason)
		b.CancelledAt = &now
		b.CancelledBy = &actor.UserID
		if b.ChatActive {
			b.ChatActive = false
			b.ChatTerminatedAt = &now
		}
		if err := s.commit(ctx, op, b, prev); err != nil {
			return nil, err
		}
	}

	refunded := false
	if b.PaymentID != nil {
		p, err := s.payments.GetPayment(ctx, *b.PaymentID)
		if err != nil {
			return nil, mapStoreErr(err, "payment")
		}
		if p.EscrowStatus == model.EscrowHeld {
			if refunded, err = s.ledger.Refund(ctx, p.ID, b.ID); err != nil {
				return nil, err
			}
		}
	}

	fresh, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"booking_id": fresh.ID,
		"reason":     fresh.CancelReason,
		"refunded":   refunded,
	}
	s.emitBoth(ctx, fresh, "booking-cancelled", payload)
	s.logActivity(ctx, actor.UserID, "booking_cancelled", fresh.ID, payload)
	return s.view(ctx, fresh, actor), nil
}

package service

import (
	"context"
	"log/slog"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// Side effects below are best effort. Failures are logged and swallowed so
// they never undo or fail the transition that triggered them.

func (s *BookingService) emit(ctx context.Context, userID uint64, event string, payload any) {
	if userID == 0 {
		return
	}
	if err := s.notifier.Emit(ctx, userID, event, payload); err != nil {
		slog.WarnContext(ctx, "notify_failed", "user_id", userID, "event", event, "error", err)
	}
}

func (s *BookingService) emitBoth(ctx context.Context, b *model.Booking, event string, payload any) {
	s.emit(ctx, b.CustomerID, event, payload)
	s.emit(ctx, b.ProviderID, event, payload)
}

func (s *BookingService) startWorkflow(ctx context.Context, wf model.ServiceWorkflow) {
	if err := s.workflow.Start(ctx, wf); err != nil {
		slog.WarnContext(ctx, "workflow_start_failed", "booking_id", wf.BookingID, "error", err)
	}
}

func (s *BookingService) step(ctx context.Context, bookingID, name string, status model.StepStatus) {
	if err := s.workflow.SetStep(ctx, bookingID, name, status); err != nil {
		slog.WarnContext(ctx, "workflow_step_failed", "booking_id", bookingID, "step", name, "error", err)
	}
}

func (s *BookingService) logActivity(ctx context.Context, userID uint64, action, bookingID string, details map[string]any) {
	a := model.Activity{
		UserID:    userID,
		Action:    action,
		BookingID: bookingID,
		Details:   details,
		At:        s.now().UTC(),
	}
	if err := s.activity.Log(ctx, a); err != nil {
		slog.WarnContext(ctx, "activity_log_failed", "action", action, "booking_id", bookingID, "error", err)
	}
}

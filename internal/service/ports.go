package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// BookingStore persists bookings. UpdateBooking is a compare-and-swap: it
// writes b only while the stored state vector still equals expected, and
// returns repository.ErrStaleState otherwise. CreateBooking returns
// repository.ErrProviderBusy when the provider already holds an occupying
// booking.
//
// Ratings are not part of UpdateBooking. SaveRating writes the rater's
// side once, on a completed booking, and returns repository.ErrStaleState
// when that side is already rated or the booking is not completed.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	UpdateBooking(ctx context.Context, b *model.Booking, expected model.StateVector) error
	SaveLiveLocation(ctx context.Context, bookingID string, role model.Role, p model.GeoPoint, at time.Time) error
	SaveTracking(ctx context.Context, bookingID string, t model.Tracking) error
	SaveRating(ctx context.Context, bookingID string, rater model.Role, rating int, review string, at time.Time) error
	AverageRating(ctx context.Context, role model.Role, userID uint64) (float64, int, error)
}

// PaymentStore persists payments and applies the escrow money movements.
// The Apply methods are atomic and guarded by the payment's current status,
// returning false when the guard no longer holds.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	FindPendingPayment(ctx context.Context, bookingID string) (*model.Payment, error)
	SetExternalTransaction(ctx context.Context, paymentID, externalID string) error
	ApplyDeposit(ctx context.Context, d model.Deposit) (bool, error)
	ApplyRelease(ctx context.Context, s model.Settlement) (bool, error)
	ApplyRefund(ctx context.Context, r model.Refund) (bool, error)
	GetEscrowWallet(ctx context.Context) (model.EscrowWallet, error)
	ListWalletTransactions(ctx context.Context, bookingID string) ([]model.WalletTransaction, error)
}

// UserStore reads and updates user profile data the booking flow touches.
type UserStore interface {
	GetUser(ctx context.Context, id uint64) (*model.User, error)
	UpdateUserLocation(ctx context.Context, id uint64, p model.GeoPoint) error
	SetRating(ctx context.Context, id uint64, avg float64, count int) error
}

// ProviderDirectory answers catalog and availability questions.
type ProviderDirectory interface {
	GetService(ctx context.Context, id uint64) (*model.Service, error)
	GetProvider(ctx context.Context, userID uint64) (*model.Provider, error)
	IsProviderBusy(ctx context.Context, providerID uint64) (bool, error)
	ListMatchCandidates(ctx context.Context, skills []string) ([]model.Candidate, error)
}

// Sequence hands out durable, strictly increasing numbers per name.
type Sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Notifier delivers a realtime event to one user. Delivery is best effort.
type Notifier interface {
	Emit(ctx context.Context, userID uint64, event string, payload any) error
}

// WorkflowRecorder maintains the per-booking progress checklist.
type WorkflowRecorder interface {
	Start(ctx context.Context, wf model.ServiceWorkflow) error
	SetStep(ctx context.Context, bookingID, step string, status model.StepStatus) error
}

// ActivityLogger records audit activity.
type ActivityLogger interface {
	Log(ctx context.Context, a model.Activity) error
}

// PaymentGateway is the external payment processor.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, in IntentRequest) (*Intent, error)
	VerifyEvent(ctx context.Context, eventID string) (*GatewayEvent, error)
}

// IntentRequest asks the gateway to collect Amount for a payment.
type IntentRequest struct {
	BookingID string
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
	CardToken string
	SourceID  string
}

// Intent is the gateway's answer to CreateIntent.
type Intent struct {
	ExternalID string
	Status     string
	Succeeded  bool
}

// GatewayEvent is a verified webhook event. Relevant is false for event
// kinds the marketplace ignores.
type GatewayEvent struct {
	Relevant      bool
	Succeeded     bool
	BookingID     string
	PaymentID     string
	ExternalID    string
	FailureReason string
}

type nopNotifier struct{}

func (nopNotifier) Emit(ctx context.Context, userID uint64, event string, _ any) error {
	slog.DebugContext(ctx, "notification_dropped", "user_id", userID, "event", event)
	return nil
}

type nopWorkflow struct{}

func (nopWorkflow) Start(context.Context, model.ServiceWorkflow) error            { return nil }
func (nopWorkflow) SetStep(context.Context, string, string, model.StepStatus) error { return nil }

type nopActivity struct{}

func (nopActivity) Log(ctx context.Context, a model.Activity) error {
	slog.DebugContext(ctx, "activity", "user_id", a.UserID, "action", a.Action, "booking_id", a.BookingID)
	return nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle stage of a booking.
type BookingStatus string

const (
	StatusPendingPayment    BookingStatus = "pending_payment"
	StatusPendingAcceptance BookingStatus = "pending_acceptance"
	StatusConfirmed         BookingStatus = "confirmed"
	StatusInProgress        BookingStatus = "in_progress"
	StatusCompleted         BookingStatus = "completed"
	StatusCancelled         BookingStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Occupying reports whether a booking in this status keeps its provider busy
// for matching purposes.
func (s BookingStatus) Occupying() bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusPendingPayment:
		return true
	}
	return false
}

// OccupyingStatuses lists the statuses that make a provider unavailable.
var OccupyingStatuses = []BookingStatus{StatusConfirmed, StatusInProgress, StatusPendingPayment}

// RequestStatus is the provider's decision on a booking request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// BookingPaymentStatus tracks where the customer's money is from the
// booking's point of view.
type BookingPaymentStatus string

const (
	PaymentPending            BookingPaymentStatus = "pending"
	PaymentPaidToEscrow       BookingPaymentStatus = "paid_to_escrow"
	PaymentReleasedToProvider BookingPaymentStatus = "released_to_provider"
	PaymentRefunded           BookingPaymentStatus = "refunded"
)

// StateVector is the composite of the three independent status axes. Every
// transition is written as a compare-and-swap against the vector read before
// the change.
type StateVector struct {
	Status  BookingStatus        `json:"status"`
	Request RequestStatus        `json:"request_status"`
	Payment BookingPaymentStatus `json:"payment_status"`
}

// JobSize is the declared size of the job.
type JobSize string

const (
	JobSmall  JobSize = "small"
	JobMedium JobSize = "medium"
	JobLarge  JobSize = "large"
	JobCustom JobSize = "custom"
)

var jobSizeMultipliers = map[JobSize]decimal.Decimal{
	JobSmall:  decimal.NewFromInt(1),
	JobMedium: decimal.RequireFromString("1.5"),
	JobLarge:  decimal.NewFromInt(2),
	JobCustom: decimal.NewFromInt(1),
}

// Multiplier returns the price factor for the job size and false when the
// size is unknown.
func (j JobSize) Multiplier() (decimal.Decimal, bool) {
	m, ok := jobSizeMultipliers[j]
	return m, ok
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Tracking holds the live-location and proximity state of a booking.
type Tracking struct {
	CustomerLocation    *GeoPoint  `json:"customer_live_location,omitempty"`
	CustomerLocationAt  *time.Time `json:"customer_location_at,omitempty"`
	ProviderLocation    *GeoPoint  `json:"provider_live_location,omitempty"`
	ProviderLocationAt  *time.Time `json:"provider_location_at,omitempty"`
	DistanceApart       *float64   `json:"distance_apart,omitempty"`
	ProximityDetected   bool       `json:"proximity_detected"`
	ProximityDetectedAt *time.Time `json:"proximity_detected_at,omitempty"`
	ProximityStartTime  *time.Time `json:"proximity_start_time,omitempty"`
	CanStartJob         bool       `json:"can_start_job"`
}

// ChatGate controls the customer/provider chat channel for a booking.
type ChatGate struct {
	CustomerChatToken string     `json:"customer_chat_token,omitempty"`
	ProviderChatToken string     `json:"provider_chat_token,omitempty"`
	ChatActive        bool       `json:"chat_active"`
	ChatTerminatedAt  *time.Time `json:"chat_terminated_at,omitempty"`
}

// Booking is the central aggregate of the marketplace.
type Booking struct {
	ID         string  `json:"id"`
	Reference  string  `json:"reference"`
	CustomerID uint64  `json:"customer_id"`
	ServiceID  uint64  `json:"service_id"`
	ProviderID uint64  `json:"provider_id"`
	PaymentID  *string `json:"payment_id,omitempty"`

	Status        BookingStatus        `json:"status"`
	RequestStatus RequestStatus        `json:"request_status"`
	PaymentStatus BookingPaymentStatus `json:"payment_status"`

	Date                     string    `json:"date"`
	Time                     string    `json:"time"`
	ScheduledAt              time.Time `json:"scheduled_at"`
	Location                 GeoPoint  `json:"location"`
	Notes                    string    `json:"notes,omitempty"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`

	JobSize              JobSize         `json:"job_size"`
	JobSizeMultiplier    decimal.Decimal `json:"job_size_multiplier"`
	BasePrice            decimal.Decimal `json:"base_price"`
	CalculatedPrice      decimal.Decimal `json:"calculated_price"`
	LocationMultiplier   decimal.Decimal `json:"location_multiplier"`
	ProviderDistance     float64         `json:"provider_distance_km"`
	EscrowAmount         decimal.Decimal `json:"escrow_amount"`
	CommissionAmount     decimal.Decimal `json:"commission_amount"`
	ProviderPayoutAmount decimal.Decimal `json:"provider_payout_amount"`
	SLABreached          bool            `json:"sla_breached"`
	SLAPenaltyAmount     decimal.Decimal `json:"sla_penalty_amount"`

	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ActualDurationMinutes int        `json:"actual_duration_minutes"`

	Tracking
	ChatGate

	DeclineReason string     `json:"decline_reason,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CancelledBy   *uint64    `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`

	CustomerRating *int   `json:"customer_rating,omitempty"` // given by the customer to the provider
	CustomerReview string `json:"customer_review,omitempty"`
	ProviderRating *int   `json:"provider_rating,omitempty"` // given by the provider to the customer

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State returns the booking's current state vector.
func (b *Booking) State() StateVector {
	return StateVector{Status: b.Status, Request: b.RequestStatus, Payment: b.PaymentStatus}
}

// Clone returns a deep copy so callers can mutate without aliasing stored
// pointers.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.PaymentID = cloneString(b.PaymentID)
	c.StartedAt = cloneTime(b.StartedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CustomerLocation = clonePoint(b.CustomerLocation)
	c.CustomerLocationAt = cloneTime(b.CustomerLocationAt)
	c.ProviderLocation = clonePoint(b.ProviderLocation)
	c.ProviderLocationAt = cloneTime(b.ProviderLocationAt)
	if b.DistanceApart != nil {
		d := *b.DistanceApart
		c.DistanceApart = &d
	}
	c.ProximityDetectedAt = cloneTime(b.ProximityDetectedAt)
	c.ProximityStartTime = cloneTime(b.ProximityStartTime)
	c.ChatTerminatedAt = cloneTime(b.ChatTerminatedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	if b.CancelledBy != nil {
		v := *b.CancelledBy
		c.CancelledBy = &v
	}
	if b.CustomerRating != nil {
		v := *b.CustomerRating
		c.CustomerRating = &v
	}
	if b.ProviderRating != nil {
		v := *b.ProviderRating
		c.ProviderRating = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePoint(p *GeoPoint) *GeoPoint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

package model

import "time"

// StepStatus is the progress of a single workflow step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// Workflow step names, in display order.
const (
	StepBookingCreated   = "Booking Request Created"
	StepProviderAssigned = "Provider Assigned"
	StepPaymentReceived  = "Payment Received"
	StepProviderEnRoute  = "Provider En Route"
	StepServiceProgress  = "Service In Progress"
	StepServiceCompleted = "Service Completed"
)

// WorkflowStep is one entry of a booking's workflow checklist.
type WorkflowStep struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ServiceWorkflow is the customer-facing progress record of a booking.
type ServiceWorkflow struct {
	BookingID string         `json:"booking_id"`
	Steps     []WorkflowStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewBookingWorkflow returns the fixed step list for a fresh booking with
// the first step already completed.
func NewBookingWorkflow(bookingID string, now time.Time) ServiceWorkflow {
	names := []string{
		StepBookingCreated,
		StepProviderAssigned,
		StepPaymentReceived,
		StepProviderEnRoute,
		StepServiceProgress,
		StepServiceCompleted,
	}
	steps := make([]WorkflowStep, len(names))
	for i, n := range names {
		steps[i] = WorkflowStep{Name: n, Status: StepPending, UpdatedAt: now}
	}
	steps[0].Status = StepCompleted
	return ServiceWorkflow{BookingID: bookingID, Steps: steps, CreatedAt: now, UpdatedAt: now}
}

// Activity is an audit record of a user-visible action.
type Activity struct {
	UserID    uint64         `json:"user_id"`
	Action    string         `json:"action"`
	BookingID string         `json:"booking_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

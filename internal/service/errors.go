package service

import (
	"errors"
	"fmt"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// Failure classes surfaced to callers. Handlers switch on these with
// errors.Is; the wrapper types below carry the detail.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream failure")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError reports a transition attempted from the wrong state and carries
// the state the booking is actually in.
type StateError struct {
	Op     string
	State  model.StateVector
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (status=%s request=%s payment=%s)",
		e.Op, e.Reason, e.State.Status, e.State.Request, e.State.Payment)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidState(op string, b *model.Booking, reason string) error {
	return &StateError{Op: op, State: b.State(), Reason: reason}
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

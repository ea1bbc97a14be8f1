// Package repository holds the MySQL and in-memory stores. The sentinel
// errors below are shared by both so that the service layer can tell
// failure scenarios apart without knowing which store is in use.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing data, such as
// a duplicate reference number.
var ErrConflict = errors.New("conflict")

// ErrStaleState is returned by compare-and-swap updates when the row's
// state changed since the caller read it.
var ErrStaleState = errors.New("stale state")

// ErrProviderBusy is returned when a booking would give a provider a second
// occupying booking.
var ErrProviderBusy = errors.New("provider already has an active booking")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// booking service and the handlers to distinguish failure kinds with
// errors.Is.  Entity-specific errors wrap one of the generic kinds, so
// ErrStallNotFound matches both itself and ErrNotFound.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a user or stall id does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation they
// are not allowed to perform, such as cancelling another trader's
// booking.  Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be applied because the
// row is no longer in the expected state, e.g. a stall that was booked
// by someone else first.  Handlers should translate this into an HTTP
// 409 response.
var ErrConflict = errors.New("conflict")

// ErrInsufficientFunds is returned by a debit that would take a balance
// below zero.  Handlers should translate this into an HTTP 402 response.
var ErrInsufficientFunds = errors.New("insufficient funds")

var (
	ErrStallNotFound  = fmt.Errorf("stall %w", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)
	ErrAlreadyBooked  = fmt.Errorf("stall already booked: %w", ErrConflict)
	ErrUsernameExists = fmt.Errorf("username already exists: %w", ErrConflict)
)

package service

import (
    "errors"
    "fmt"

    "github.com/iliyamo/market-stall-booking/internal/repository"
)

// ErrInvalidInput marks a request the service refuses before touching
// storage: a missing transfer reference, a negative amount, empty shop
// details and so on.
var ErrInvalidInput = errors.New("invalid input")

var (
    // ErrCancelDeadlinePassed is returned to non-admins cancelling after
    // the daily cut-off.
    ErrCancelDeadlinePassed = fmt.Errorf("cancellation deadline passed: %w", repository.ErrForbidden)
    // ErrNotBookingOwner is returned when the actor neither holds the
    // booking nor is an admin.
    ErrNotBookingOwner = fmt.Errorf("not the booking owner: %w", repository.ErrForbidden)
)

func invalid(format string, args ...any) error {
    return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

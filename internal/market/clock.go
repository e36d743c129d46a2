// Package market resolves the market's local time and derives the daily
// trading window: whether the market is open and whether bookings can
// still be cancelled with a refund.
package market

import "time"

// Clock supplies the current instant.  Production code uses SystemClock;
// tests pin the time with FixedClock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the host clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

package market

import (
	"fmt"
	"time"
)

// Market status values reported by Info.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

const (
	DefaultOffsetHours  = 7
	DefaultOpenAt       = 11 * time.Hour
	DefaultCancelBefore = 10*time.Hour + 30*time.Minute
)

// Window holds the market's fixed time zone and the two daily thresholds,
// both expressed as offsets from local midnight.
type Window struct {
	Location     *time.Location
	OpenAt       time.Duration
	CancelBefore time.Duration
}

// Info is the market state at one instant.
type Info struct {
	Status         string    `json:"status"`
	CanCancel      bool      `json:"can_cancel"`
	CancelDeadline time.Time `json:"cancel_deadline"`
	Date           string    `json:"date"`
	Now            time.Time `json:"now"`
}

// NewWindow builds a Window for a fixed UTC offset in whole hours.
func NewWindow(offsetHours int, openAt, cancelBefore time.Duration) Window {
	return Window{
		Location:     Zone(offsetHours),
		OpenAt:       openAt,
		CancelBefore: cancelBefore,
	}
}

// DefaultWindow is UTC+7, open from 11:00, cancellable until 10:30.
func DefaultWindow() Window {
	return NewWindow(DefaultOffsetHours, DefaultOpenAt, DefaultCancelBefore)
}

// Zone returns a fixed zone named after its offset, e.g. "UTC+7".
func Zone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// Local converts t to market-local time.
func (w Window) Local(t time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// Today returns the market-local calendar date of t as YYYY-MM-DD.
func (w Window) Today(t time.Time) string {
	return w.Local(t).Format("2006-01-02")
}

// Info derives the market status for the instant now.  It has no side
// effects.
func (w Window) Info(now time.Time) Info {
	local := w.Local(now)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	sinceMidnight := local.Sub(midnight)

	status := StatusClosed
	if sinceMidnight >= w.OpenAt {
		status = StatusOpen
	}
	return Info{
		Status:         status,
		CanCancel:      sinceMidnight < w.CancelBefore,
		CancelDeadline: midnight.Add(w.CancelBefore),
		Date:           local.Format("2006-01-02"),
		Now:            local,
	}
}

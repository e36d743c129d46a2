// Package queue defines the stall lifecycle events exchanged over the
// message broker, the publishers that emit them and the consumer that
// turns them into an append-only booking log.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/market-stall-booking/internal/model"
)

// Event types.
const (
    EventBooked    = "stall.booked"
    EventCancelled = "stall.cancelled"
    EventForfeited = "stall.forfeited"
)

// StallEvent is published after a booking, cancellation or rollover has
// committed.  It carries enough for downstream consumers to log or notify
// without querying the primary database.
type StallEvent struct {
    ID            string `json:"id"`
    Type          string `json:"type"`
    StallID       uint64 `json:"stall_id"`
    StallName     string `json:"stall_name"`
    Zone          string `json:"zone"`
    Price         int64  `json:"price"`
    UserID        uint64 `json:"user_id"`
    ActorID       uint64 `json:"actor_id,omitempty"`
    ShopName      string `json:"shop_name,omitempty"`
    BookingDate   string `json:"booking_date,omitempty"`
    PaymentMethod string `json:"payment_method,omitempty"`
    Refunded      int64  `json:"refunded,omitempty"`
    OccurredAt    string `json:"occurred_at"`
}

// NewStallEvent fills the stall and booking fields of an event from s,
// which must still carry the booking (i.e. be read before release).
func NewStallEvent(typ string, s model.Stall, at time.Time) StallEvent {
    ev := StallEvent{
        ID:          uuid.NewString(),
        Type:        typ,
        StallID:     s.ID,
        StallName:   s.Name,
        Zone:        s.Zone,
        Price:       s.Price,
        ShopName:    s.ShopName,
        BookingDate: s.BookingDate,
        OccurredAt:  at.Format(time.RFC3339),
    }
    if s.BookedBy != nil {
        ev.UserID = *s.BookedBy
    }
    return ev
}

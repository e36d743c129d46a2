package model

// Stall occupancy states.
const (
    StallAvailable = "available"
    StallBooked    = "booked"
)

// Payment states stored in stalls.payment_status.
const (
    PaymentPending = "pending"
    PaymentPaid    = "paid"
)

// PaymentMethod selects how a booking is paid for.
type PaymentMethod string

const (
    // PayByCredit debits the booker's internal balance.
    PayByCredit PaymentMethod = "credit"
    // PayByTransfer accepts an external transfer reference without checking it.
    PayByTransfer PaymentMethod = "transfer"
)

// CreditPaymentRef is stored as payment_ref for credit-funded bookings.
const CreditPaymentRef = "CREDIT"

// DateLayout is the format of stalls.booking_date (market-local calendar day).
const DateLayout = "2006-01-02"

// Stall mirrors a row of the `stalls` table.  The booking fields are
// empty and BookedBy is nil while the stall is available; all of them
// are set while it is booked.
type Stall struct {
    ID              uint64  `json:"id"`
    Name            string  `json:"name"`
    Zone            string  `json:"zone"`
    Price           int64   `json:"price"`
    Status          string  `json:"status"`
    ShopName        string  `json:"shop_name,omitempty"`
    Phone           string  `json:"phone,omitempty"`
    ProductCategory string  `json:"product_category,omitempty"`
    BookingDate     string  `json:"booking_date,omitempty"`
    BookedBy        *uint64 `json:"booked_by,omitempty"`
    PaymentRef      string  `json:"payment_ref,omitempty"`
    PaymentStatus   string  `json:"payment_status"`
}

// IsBooked reports whether the stall is currently booked.
func (s Stall) IsBooked() bool { return s.Status == StallBooked }

// IsBookedBy reports whether userID owns the current booking.
func (s Stall) IsBookedBy(userID uint64) bool {
    return s.IsBooked() && s.BookedBy != nil && *s.BookedBy == userID
}

// ShopDetails are the trader-supplied fields written on booking.
type ShopDetails struct {
    ShopName        string `json:"shop_name"`
    Phone           string `json:"phone"`
    ProductCategory string `json:"product_category"`
}

// Booking is everything StallRepo.ReserveTx writes when a stall moves
// from available to booked.
type Booking struct {
    ShopDetails
    BookedBy    uint64
    BookingDate string
    PaymentRef  string
}

// Zone groups stalls for display in declaration order.
type Zone struct {
    Name   string  `json:"name"`
    Stalls []Stall `json:"stalls"`
}

// BookedStall is a booked stall joined with the booker's username, used by
// the admin dashboard.
type BookedStall struct {
    Stall
    Username string `json:"username"`
}

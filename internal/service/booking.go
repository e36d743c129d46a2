// Package service implements the booking workflows on top of the
// repositories: booking with payment, time-gated cancellation with refund,
// daily rollover and admin balance overrides.  Every workflow is a single
// database transaction; events are published only after it commits.
package service

import (
    "context"
    "database/sql"
    "fmt"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation"
    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/market"
    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/queue"
    "github.com/iliyamo/market-stall-booking/internal/repository"
)

// StallStore is the stall registry as the booking service needs it.
type StallStore interface {
    List(ctx context.Context) ([]model.Stall, error)
    Search(ctx context.Context, q string) ([]model.Stall, error)
    GetByID(ctx context.Context, id uint64) (model.Stall, error)
    GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Stall, error)
    ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, b model.Booking) error
    ReleaseTx(ctx context.Context, tx *sql.Tx, s model.Stall) (bool, error)
    RolloverStaleTx(ctx context.Context, tx *sql.Tx, today string) ([]model.Stall, error)
}

// BookingService orchestrates stalls and balances.
type BookingService struct {
    db        *sql.DB
    stalls    StallStore
    users     UserStore
    events    EventStore
    publisher EventPublisher
    clock     market.Clock
    window    market.Window

    silentUnauthorizedCancel bool
}

// Option customises a BookingService.
type Option func(*BookingService)

// WithClock replaces the system clock.
func WithClock(c market.Clock) Option { return func(s *BookingService) { s.clock = c } }

// WithWindow sets the market zone and daily thresholds.
func WithWindow(w market.Window) Option { return func(s *BookingService) { s.window = w } }

// WithPublisher sets where stall events go.
func WithPublisher(p EventPublisher) Option { return func(s *BookingService) { s.publisher = p } }

// WithSilentUnauthorizedCancel makes a cancel by a stranger a no-op
// instead of ErrNotBookingOwner.
func WithSilentUnauthorizedCancel(on bool) Option {
    return func(s *BookingService) { s.silentUnauthorizedCancel = on }
}

// NewBookingService constructs the service.  It defaults to the system
// clock, the UTC+7 market window and no event publishing.
func NewBookingService(db *sql.DB, stalls StallStore, users UserStore, events EventStore, opts ...Option) *BookingService {
    if db == nil || stalls == nil || users == nil || events == nil {
        panic("nil dependency passed to NewBookingService")
    }
    s := &BookingService{
        db:        db,
        stalls:    stalls,
        users:     users,
        events:    events,
        publisher: NopPublisher(),
        clock:     market.SystemClock,
        window:    market.DefaultWindow(),
    }
    for _, o := range opts {
        o(s)
    }
    return s
}

// MarketInfo reports the market status right now.
func (s *BookingService) MarketInfo() market.Info {
    return s.window.Info(s.clock.Now())
}

// Today is the current market-local date.
func (s *BookingService) Today() string {
    return s.window.Today(s.clock.Now())
}

// BookRequest carries everything Book needs.
type BookRequest struct {
    UserID     uint64
    StallID    uint64
    Details    model.ShopDetails
    Method     model.PaymentMethod
    PaymentRef string
}

// Validate checks the request shape.  The transfer reference is checked
// by Book, after the stall is known to be free.
func (r BookRequest) Validate() error {
    if err := validation.ValidateStruct(&r,
        validation.Field(&r.UserID, validation.Required),
        validation.Field(&r.StallID, validation.Required),
        validation.Field(&r.Method, validation.Required, validation.In(model.PayByCredit, model.PayByTransfer)),
    ); err != nil {
        return err
    }
    d := r.Details
    return validation.ValidateStruct(&d,
        validation.Field(&d.ShopName, validation.Required, validation.Length(1, 128)),
        validation.Field(&d.Phone, validation.Required, validation.Length(1, 32)),
        validation.Field(&d.ProductCategory, validation.Required, validation.Length(1, 64)),
    )
}

// Book reserves a stall for today.  Payment and reservation commit
// together: a credit debit is rolled back if the stall was taken in the
// meantime.  Failures are repository.ErrAlreadyBooked (conflict),
// repository.ErrInsufficientFunds, ErrInvalidInput and the not-found
// errors for unknown users or stalls.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (model.Stall, error) {
    req.Details.ShopName = strings.TrimSpace(req.Details.ShopName)
    req.Details.Phone = strings.TrimSpace(req.Details.Phone)
    req.Details.ProductCategory = strings.TrimSpace(req.Details.ProductCategory)
    req.PaymentRef = strings.TrimSpace(req.PaymentRef)
    if err := req.Validate(); err != nil {
        return model.Stall{}, invalid("%v", err)
    }

    now := s.clock.Now()
    today := s.window.Today(now)
    if _, err := s.RolloverFor(ctx, today); err != nil {
        return model.Stall{}, err
    }

    var booked model.Stall
    err := inTx(ctx, s.db, func(tx *sql.Tx) error {
        st, err := s.stalls.GetTx(ctx, tx, req.StallID)
        if err != nil {
            return err
        }
        if st.IsBooked() {
            return repository.ErrAlreadyBooked
        }
        if _, err := s.users.GetTx(ctx, tx, req.UserID); err != nil {
            return err
        }

        ref := req.PaymentRef
        var debit *model.LedgerEvent
        switch req.Method {
        case model.PayByTransfer:
            if ref == "" {
                return invalid("transfer reference is required")
            }
        case model.PayByCredit:
            balance, err := s.users.DebitTx(ctx, tx, req.UserID, st.Price)
            if err != nil {
                return err
            }
            ref = model.CreditPaymentRef
            stallID := st.ID
            debit = &model.LedgerEvent{
                UserID: req.UserID, ActorID: &req.UserID, Kind: model.LedgerDebit,
                Amount: st.Price, BalanceAfter: balance, StallID: &stallID,
                Reason:     "booked stall " + st.Name,
                OccurredAt: stamp(s.window, now),
            }
        }

        if err := s.stalls.ReserveTx(ctx, tx, st.ID, model.Booking{
            ShopDetails: req.Details,
            BookedBy:    req.UserID,
            BookingDate: today,
            PaymentRef:  ref,
        }); err != nil {
            return err
        }
        if debit != nil {
            if err := s.events.AppendTx(ctx, tx, debit); err != nil {
                return err
            }
        }
        booked, err = s.stalls.GetTx(ctx, tx, st.ID)
        return err
    })
    if err != nil {
        return model.Stall{}, err
    }

    ev := queue.NewStallEvent(queue.EventBooked, booked, s.window.Local(now))
    ev.ActorID = req.UserID
    ev.PaymentMethod = string(req.Method)
    publishAll(ctx, s.publisher, ev)
    return booked, nil
}

// CancelResult describes the outcome of Cancel.  Cancelled is false for
// the silent no-op cases (stall not booked, or a stranger's attempt when
// silent mode is on).
type CancelResult struct {
    Stall     model.Stall `json:"stall"`
    Cancelled bool        `json:"cancelled"`
    Refunded  int64       `json:"refunded"`
}

// Cancel releases a booking and refunds the full price to the booker.
// Non-admins may only cancel their own booking and only before the daily
// cancellation deadline; admins may cancel any booking at any time.
// Bookings from an earlier day are forfeited first and never refunded.
func (s *BookingService) Cancel(ctx context.Context, actorID uint64, actorRole string, stallID uint64) (CancelResult, error) {
    now := s.clock.Now()
    isAdmin := actorRole == model.RoleAdmin
    if !isAdmin && !s.window.Info(now).CanCancel {
        return CancelResult{}, ErrCancelDeadlinePassed
    }
    today := s.window.Today(now)
    if _, err := s.RolloverFor(ctx, today); err != nil {
        return CancelResult{}, err
    }

    var (
        res    CancelResult
        before model.Stall
    )
    err := inTx(ctx, s.db, func(tx *sql.Tx) error {
        st, err := s.stalls.GetTx(ctx, tx, stallID)
        if err != nil {
            return err
        }
        res.Stall = st
        if !st.IsBooked() || st.BookedBy == nil || st.BookingDate != today {
            return nil
        }
        if !st.IsBookedBy(actorID) && !isAdmin {
            if s.silentUnauthorizedCancel {
                return nil
            }
            return ErrNotBookingOwner
        }

        released, err := s.stalls.ReleaseTx(ctx, tx, st)
        if err != nil {
            return err
        }
        if released {
            booker := *st.BookedBy
            balance, err := s.users.CreditTx(ctx, tx, booker, st.Price)
            if err != nil {
                return err
            }
            reason := "cancelled by owner"
            if booker != actorID {
                reason = "cancelled by admin"
            }
            id := st.ID
            if err := s.events.AppendTx(ctx, tx, &model.LedgerEvent{
                UserID: booker, ActorID: &actorID, Kind: model.LedgerRefund,
                Amount: st.Price, BalanceAfter: balance, StallID: &id,
                Reason: reason + ": " + st.Name, OccurredAt: stamp(s.window, now),
            }); err != nil {
                return err
            }
            before = st
            res.Cancelled = true
            res.Refunded = st.Price
        }
        res.Stall, err = s.stalls.GetTx(ctx, tx, st.ID)
        return err
    })
    if err != nil {
        return CancelResult{}, err
    }

    if res.Cancelled {
        ev := queue.NewStallEvent(queue.EventCancelled, before, s.window.Local(now))
        ev.ActorID = actorID
        ev.Refunded = res.Refunded
        publishAll(ctx, s.publisher, ev)
    }
    return res, nil
}

// Rollover forfeits every booking not made for the current market date.
func (s *BookingService) Rollover(ctx context.Context) (int, error) {
    return s.RolloverFor(ctx, s.Today())
}

// RolloverFor releases every booked stall whose booking date is not today
// without refunding anyone.  Each forfeiture is recorded in the ledger
// log with the booker's unchanged balance.  Calling it again for the same
// day is a no-op.
func (s *BookingService) RolloverFor(ctx context.Context, today string) (int, error) {
    now := s.clock.Now()
    var released []model.Stall
    err := inTx(ctx, s.db, func(tx *sql.Tx) error {
        var err error
        released, err = s.stalls.RolloverStaleTx(ctx, tx, today)
        if err != nil {
            return err
        }
        for _, st := range released {
            u, err := s.users.GetTx(ctx, tx, *st.BookedBy)
            if err != nil {
                return err
            }
            id := st.ID
            if err := s.events.AppendTx(ctx, tx, &model.LedgerEvent{
                UserID: u.ID, Kind: model.LedgerForfeit,
                Amount: st.Price, BalanceAfter: u.Credit, StallID: &id,
                Reason:     fmt.Sprintf("booking for %s on %s not consumed", st.Name, st.BookingDate),
                OccurredAt: stamp(s.window, now),
            }); err != nil {
                return err
            }
        }
        return nil
    })
    if err != nil {
        return 0, err
    }
    if len(released) == 0 {
        return 0, nil
    }

    zap.L().Info("stale bookings forfeited", zap.String("today", today), zap.Int("count", len(released)))
    evs := make([]queue.StallEvent, 0, len(released))
    for _, st := range released {
        evs = append(evs, queue.NewStallEvent(queue.EventForfeited, st, s.window.Local(now)))
    }
    publishAll(ctx, s.publisher, evs...)
    return len(released), nil
}

// AdminSetCredit overwrites a user's balance.  The previous balance is
// kept in the ledger log.
func (s *BookingService) AdminSetCredit(ctx context.Context, actorID, userID uint64, balance int64) (model.User, error) {
    if balance < 0 {
        return model.User{}, invalid("credit must not be negative")
    }
    var out model.User
    err := inTx(ctx, s.db, func(tx *sql.Tx) error {
        prev, err := s.users.GetTx(ctx, tx, userID)
        if err != nil {
            return err
        }
        if err := s.users.SetCreditTx(ctx, tx, userID, balance); err != nil {
            return err
        }
        if err := s.events.AppendTx(ctx, tx, &model.LedgerEvent{
            UserID: userID, ActorID: &actorID, Kind: model.LedgerAdminSet,
            Amount: balance, BalanceAfter: balance,
            Reason:     fmt.Sprintf("admin override, previous balance %d", prev.Credit),
            OccurredAt: stamp(s.window, s.clock.Now()),
        }); err != nil {
            return err
        }
        out, err = s.users.GetTx(ctx, tx, userID)
        return err
    })
    return out, err
}

// Board is the grouped stall view with the market state.
type Board struct {
    Zones      []model.Zone `json:"zones"`
    ActiveZone string       `json:"active_zone"`
    Query      string       `json:"query,omitempty"`
    Market     market.Info  `json:"market"`
}

// Board rolls stale bookings over and then returns the stalls grouped by
// zone.  With a query only stalls whose shop name contains it are listed
// and the zone of the first match becomes active; otherwise zone is used
// when given, else the first zone.
func (s *BookingService) Board(ctx context.Context, query, zone string) (Board, error) {
    if _, err := s.Rollover(ctx); err != nil {
        return Board{}, err
    }
    query = strings.TrimSpace(query)
    var (
        stalls []model.Stall
        err    error
    )
    if query != "" {
        stalls, err = s.stalls.Search(ctx, query)
    } else {
        stalls, err = s.stalls.List(ctx)
    }
    if err != nil {
        return Board{}, err
    }

    b := Board{
        Zones:  repository.GroupByZone(stalls),
        Query:  query,
        Market: s.MarketInfo(),
    }
    switch {
    case query != "" && len(stalls) > 0:
        b.ActiveZone = stalls[0].Zone
    case zone != "":
        b.ActiveZone = zone
    case len(b.Zones) > 0:
        b.ActiveZone = b.Zones[0].Name
    }
    return b, nil
}

// Stall returns one stall after rolling stale bookings over.
func (s *BookingService) Stall(ctx context.Context, id uint64) (model.Stall, error) {
    if _, err := s.Rollover(ctx); err != nil {
        return model.Stall{}, err
    }
    return s.stalls.GetByID(ctx, id)
}

package service

import (
    "context"
    "database/sql"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/market-stall-booking/internal/database/testdb"
    "github.com/iliyamo/market-stall-booking/internal/market"
    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/queue"
    "github.com/iliyamo/market-stall-booking/internal/repository"
)

var marketTZ = market.Zone(7)

func at(day, hour, min int) market.Clock {
    return market.FixedClock(time.Date(2025, 3, day, hour, min, 0, 0, marketTZ))
}

type recorder struct {
    mu     sync.Mutex
    events []queue.StallEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.StallEvent) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.events = append(r.events, ev)
    return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]string, 0, len(r.events))
    for _, ev := range r.events {
        out = append(out, ev.Type)
    }
    return out
}

type fixture struct {
    db     *sql.DB
    stalls *repository.StallRepo
    users  *repository.UserRepo
    ledger *repository.LedgerRepo
    pub    *recorder
}

func newFixture(t *testing.T) *fixture {
    t.Helper()
    db := testdb.New(t)
    return &fixture{
        db:     db,
        stalls: repository.NewStallRepo(db),
        users:  repository.NewUserRepo(db),
        ledger: repository.NewLedgerRepo(db),
        pub:    &recorder{},
    }
}

func (f *fixture) service(clock market.Clock, opts ...Option) *BookingService {
    opts = append([]Option{WithClock(clock), WithWindow(market.DefaultWindow()), WithPublisher(f.pub)}, opts...)
    return NewBookingService(f.db, f.stalls, f.users, f.ledger, opts...)
}

func shop() model.ShopDetails {
    return model.ShopDetails{ShopName: "Noodle Bar", Phone: "0812345678", ProductCategory: "food"}
}

func creditBooking(userID, stallID uint64) BookRequest {
    return BookRequest{UserID: userID, StallID: stallID, Details: shop(), Method: model.PayByCredit}
}

func TestBookWithCreditDebitsPrice(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "alice", model.RoleUser, 500)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 9, 0))

    st, err := svc.Book(context.Background(), creditBooking(uid, a01))
    require.NoError(t, err)

    assert.Equal(t, model.StallBooked, st.Status)
    assert.Equal(t, model.PaymentPaid, st.PaymentStatus)
    assert.Equal(t, model.CreditPaymentRef, st.PaymentRef)
    assert.Equal(t, "2025-03-14", st.BookingDate)
    assert.True(t, st.IsBookedBy(uid))
    assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))
    assert.Equal(t, []string{queue.EventBooked}, f.pub.types())

    hist, err := f.ledger.ListByUser(context.Background(), uid, 10)
    require.NoError(t, err)
    require.Len(t, hist, 1)
    assert.Equal(t, model.LedgerDebit, hist[0].Kind)
    assert.Equal(t, int64(300), hist[0].Amount)
    assert.Equal(t, int64(200), hist[0].BalanceAfter)
}

func TestBookInsufficientFundsChangesNothing(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "bob", model.RoleUser, 100)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 9, 0))

    _, err := svc.Book(context.Background(), creditBooking(uid, a01))
    require.ErrorIs(t, err, repository.ErrInsufficientFunds)

    assert.Equal(t, int64(100), testdb.Credit(t, f.db, uid))
    st, err := f.stalls.GetByID(context.Background(), a01)
    require.NoError(t, err)
    assert.Equal(t, model.StallAvailable, st.Status)
    assert.Nil(t, st.BookedBy)
    assert.Empty(t, f.pub.types())
}

func TestBookWithTransfer(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "carol", model.RoleUser, 0)
    b02 := testdb.StallID(t, f.db, "B02")
    svc := f.service(at(14, 9, 0))

    req := BookRequest{UserID: uid, StallID: b02, Details: shop(), Method: model.PayByTransfer, PaymentRef: "   "}
    _, err := svc.Book(context.Background(), req)
    require.ErrorIs(t, err, ErrInvalidInput)

    req.PaymentRef = "TX-991"
    st, err := svc.Book(context.Background(), req)
    require.NoError(t, err)
    assert.Equal(t, "TX-991", st.PaymentRef)
    assert.Equal(t, model.PaymentPaid, st.PaymentStatus)
    assert.Equal(t, int64(0), testdb.Credit(t, f.db, uid))
}

func TestBookRejectsBadRequests(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "dave", model.RoleUser, 1000)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 9, 0))
    ctx := context.Background()

    noShop := creditBooking(uid, a01)
    noShop.Details.ShopName = " "
    _, err := svc.Book(ctx, noShop)
    assert.ErrorIs(t, err, ErrInvalidInput)

    badMethod := creditBooking(uid, a01)
    badMethod.Method = "cash"
    _, err = svc.Book(ctx, badMethod)
    assert.ErrorIs(t, err, ErrInvalidInput)

    _, err = svc.Book(ctx, creditBooking(uid, 9999))
    assert.ErrorIs(t, err, repository.ErrNotFound)

    _, err = svc.Book(ctx, creditBooking(4242, a01))
    assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestBookAlreadyBookedIsConflict(t *testing.T) {
    f := newFixture(t)
    first := testdb.CreateUser(t, f.db, "erin", model.RoleUser, 1000)
    second := testdb.CreateUser(t, f.db, "frank", model.RoleUser, 1000)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 9, 0))

    _, err := svc.Book(context.Background(), creditBooking(first, a01))
    require.NoError(t, err)
    _, err = svc.Book(context.Background(), creditBooking(second, a01))
    require.ErrorIs(t, err, repository.ErrConflict)
    assert.Equal(t, int64(1000), testdb.Credit(t, f.db, second))
}

// failingReserve debits go through but the reservation step fails, as if
// another booking won the stall in between.
type failingReserve struct {
    *repository.StallRepo
}

func (failingReserve) ReserveTx(context.Context, *sql.Tx, uint64, model.Booking) error {
    return repository.ErrAlreadyBooked
}

func TestBookRollsBackDebitWhenReserveFails(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "gina", model.RoleUser, 500)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := NewBookingService(f.db, failingReserve{f.stalls}, f.users, f.ledger,
        WithClock(at(14, 9, 0)), WithPublisher(f.pub))

    _, err := svc.Book(context.Background(), creditBooking(uid, a01))
    require.ErrorIs(t, err, repository.ErrConflict)

    assert.Equal(t, int64(500), testdb.Credit(t, f.db, uid))
    hist, err := f.ledger.ListByUser(context.Background(), uid, 10)
    require.NoError(t, err)
    assert.Empty(t, hist)
    assert.Empty(t, f.pub.types())
}

// staleRead reports the stall as available even after someone else has
// booked it, as a transaction that read the row before the winner
// committed would see it.
type staleRead struct {
    *repository.StallRepo
}

func (s staleRead) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Stall, error) {
    st, err := s.StallRepo.GetTx(ctx, tx, id)
    if err != nil || st.Status != model.StallBooked {
        return st, err
    }
    return model.Stall{ID: st.ID, Name: st.Name, Zone: st.Zone, Price: st.Price,
        Status: model.StallAvailable, PaymentStatus: model.PaymentPending}, nil
}

func TestBookLosingAtReserveRollsBackDebit(t *testing.T) {
    f := newFixture(t)
    winner := testdb.CreateUser(t, f.db, "pete", model.RoleUser, 500)
    loser := testdb.CreateUser(t, f.db, "quin", model.RoleUser, 500)
    a01 := testdb.StallID(t, f.db, "A01")
    ctx := context.Background()

    _, err := f.service(at(14, 9, 0)).Book(ctx, creditBooking(winner, a01))
    require.NoError(t, err)

    late := NewBookingService(f.db, staleRead{f.stalls}, f.users, f.ledger,
        WithClock(at(14, 9, 0)), WithPublisher(f.pub))
    _, err = late.Book(ctx, creditBooking(loser, a01))
    require.ErrorIs(t, err, repository.ErrAlreadyBooked)

    assert.Equal(t, int64(500), testdb.Credit(t, f.db, loser))
    hist, err := f.ledger.ListByUser(ctx, loser, 10)
    require.NoError(t, err)
    assert.Empty(t, hist)
    st, err := f.stalls.GetByID(ctx, a01)
    require.NoError(t, err)
    assert.True(t, st.IsBookedBy(winner))
    assert.Equal(t, []string{queue.EventBooked}, f.pub.types())
}

// The test database has a single connection, so these transactions run one
// after another and the losers stop at the booked check.  The conditional
// reserve is exercised by TestBookLosingAtReserveRollsBackDebit.
func TestConcurrentBookingsHaveOneWinner(t *testing.T) {
    f := newFixture(t)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 9, 0))

    const n = 8
    ids := make([]uint64, n)
    for i := range ids {
        ids[i] = testdb.CreateUser(t, f.db, "racer"+string(rune('a'+i)), model.RoleUser, 1000)
    }

    var (
        wg        sync.WaitGroup
        mu        sync.Mutex
        wins      int
        conflicts int
    )
    for _, id := range ids {
        wg.Add(1)
        go func(uid uint64) {
            defer wg.Done()
            _, err := svc.Book(context.Background(), creditBooking(uid, a01))
            mu.Lock()
            defer mu.Unlock()
            switch {
            case err == nil:
                wins++
            case errors.Is(err, repository.ErrConflict):
                conflicts++
            default:
                t.Errorf("unexpected error: %v", err)
            }
        }(id)
    }
    wg.Wait()

    assert.Equal(t, 1, wins)
    assert.Equal(t, n-1, conflicts)

    var total int64
    for _, id := range ids {
        total += testdb.Credit(t, f.db, id)
    }
    assert.Equal(t, int64(n*1000-300), total)
}

func TestCancelBeforeDeadlineRefunds(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "hana", model.RoleUser, 500)
    a01 := testdb.StallID(t, f.db, "A01")
    svc := f.service(at(14, 10, 29))
    ctx := context.Background()

    _, err := svc.Book(ctx, creditBooking(uid, a01))
    require.NoError(t, err)

    res, err := svc.Cancel(ctx, uid, model.RoleUser, a01)
    require.NoError(t, err)
    assert.True(t, res.Cancelled)
    assert.Equal(t, int64(300), res.Refunded)
    assert.Equal(t, model.StallAvailable, res.Stall.Status)
    assert.Equal(t, model.PaymentPending, res.Stall.PaymentStatus)
    assert.Empty(t, res.Stall.ShopName)
    assert.Nil(t, res.Stall.BookedBy)
    assert.Equal(t, int64(500), testdb.Credit(t, f.db, uid))
    assert.Equal(t, []string{queue.EventBooked, queue.EventCancelled}, f.pub.types())

    again, err := svc.Cancel(ctx, uid, model.RoleUser, a01)
    require.NoError(t, err)
    assert.False(t, again.Cancelled)
    assert.Equal(t, int64(500), testdb.Credit(t, f.db, uid))
}

func TestCancelAfterDeadline(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "ivan", model.RoleUser, 500)
    admin := testdb.CreateUser(t, f.db, "root", model.RoleAdmin, 0)
    a01 := testdb.StallID(t, f.db, "A01")
    ctx := context.Background()

    _, err := f.service(at(14, 9, 0)).Book(ctx, creditBooking(uid, a01))
    require.NoError(t, err)

    late := f.service(at(14, 10, 30))
    _, err = late.Cancel(ctx, uid, model.RoleUser, a01)
    require.ErrorIs(t, err, ErrCancelDeadlinePassed)
    require.ErrorIs(t, err, repository.ErrForbidden)
    st, err := f.stalls.GetByID(ctx, a01)
    require.NoError(t, err)
    assert.True(t, st.IsBookedBy(uid))
    assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))

    res, err := late.Cancel(ctx, admin, model.RoleAdmin, a01)
    require.NoError(t, err)
    assert.True(t, res.Cancelled)
    assert.Equal(t, int64(500), testdb.Credit(t, f.db, uid))
    assert.Equal(t, int64(0), testdb.Credit(t, f.db, admin))

    hist, err := f.ledger.ListByUser(ctx, uid, 10)
    require.NoError(t, err)
    require.Len(t, hist, 2)
    assert.Equal(t, model.LedgerRefund, hist[0].Kind)
    require.NotNil(t, hist[0].ActorID)
    assert.Equal(t, admin, *hist[0].ActorID)
}

func TestCancelByStranger(t *testing.T) {
    ctx := context.Background()

    t.Run("forbidden by default", func(t *testing.T) {
        f := newFixture(t)
        owner := testdb.CreateUser(t, f.db, "jack", model.RoleUser, 500)
        other := testdb.CreateUser(t, f.db, "kate", model.RoleUser, 500)
        a01 := testdb.StallID(t, f.db, "A01")
        svc := f.service(at(14, 9, 0))
        _, err := svc.Book(ctx, creditBooking(owner, a01))
        require.NoError(t, err)

        _, err = svc.Cancel(ctx, other, model.RoleUser, a01)
        require.ErrorIs(t, err, ErrNotBookingOwner)
        st, err := f.stalls.GetByID(ctx, a01)
        require.NoError(t, err)
        assert.True(t, st.IsBookedBy(owner))
    })

    t.Run("silent no-op", func(t *testing.T) {
        f := newFixture(t)
        owner := testdb.CreateUser(t, f.db, "jack", model.RoleUser, 500)
        other := testdb.CreateUser(t, f.db, "kate", model.RoleUser, 500)
        a01 := testdb.StallID(t, f.db, "A01")
        svc := f.service(at(14, 9, 0), WithSilentUnauthorizedCancel(true))
        _, err := svc.Book(ctx, creditBooking(owner, a01))
        require.NoError(t, err)

        res, err := svc.Cancel(ctx, other, model.RoleUser, a01)
        require.NoError(t, err)
        assert.False(t, res.Cancelled)
        assert.True(t, res.Stall.IsBookedBy(owner))
        assert.Equal(t, int64(200), testdb.Credit(t, f.db, owner))
        assert.Equal(t, int64(500), testdb.Credit(t, f.db, other))
    })
}

func TestCancelUnknownStall(t *testing.T) {
    f := newFixture(t)
    svc := f.service(at(14, 9, 0))
    _, err := svc.Cancel(context.Background(), 1, model.RoleAdmin, 9999)
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRolloverForfeitsWithoutRefund(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "lena", model.RoleUser, 1000)
    a01 := testdb.StallID(t, f.db, "A01")
    c01 := testdb.StallID(t, f.db, "C01")
    ctx := context.Background()

    _, err := f.service(at(14, 12, 0)).Book(ctx, creditBooking(uid, a01))
    require.NoError(t, err)
    require.Equal(t, int64(700), testdb.Credit(t, f.db, uid))

    svc := f.service(at(15, 9, 0))
    n, err := svc.Rollover(ctx)
    require.NoError(t, err)
    assert.Equal(t, 1, n)

    old, err := f.stalls.GetByID(ctx, a01)
    require.NoError(t, err)
    assert.Equal(t, model.StallAvailable, old.Status)
    assert.Equal(t, model.PaymentPending, old.PaymentStatus)
    assert.Equal(t, int64(700), testdb.Credit(t, f.db, uid))

    hist, err := f.ledger.ListByUser(ctx, uid, 10)
    require.NoError(t, err)
    require.Len(t, hist, 2)
    assert.Equal(t, model.LedgerForfeit, hist[0].Kind)
    assert.Equal(t, int64(700), hist[0].BalanceAfter)
    assert.Contains(t, f.pub.types(), queue.EventForfeited)

    _, err = svc.Book(ctx, creditBooking(uid, c01))
    require.NoError(t, err)
    n, err = svc.Rollover(ctx)
    require.NoError(t, err)
    assert.Zero(t, n)
    today, err := f.stalls.GetByID(ctx, c01)
    require.NoError(t, err)
    assert.True(t, today.IsBookedBy(uid))
    assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))
}

func TestCancelAfterMidnightForfeitsInsteadOfRefunding(t *testing.T) {
    ctx := context.Background()

    for _, tc := range []struct {
        name string
        role string
        hour int
    }{
        {"owner just after midnight", model.RoleUser, 0},
        {"admin later that day", model.RoleAdmin, 14},
    } {
        t.Run(tc.name, func(t *testing.T) {
            f := newFixture(t)
            uid := testdb.CreateUser(t, f.db, "mia", model.RoleUser, 500)
            a01 := testdb.StallID(t, f.db, "A01")
            actor := uid
            if tc.role == model.RoleAdmin {
                actor = testdb.CreateUser(t, f.db, "root", model.RoleAdmin, 0)
            }

            _, err := f.service(at(14, 12, 0)).Book(ctx, creditBooking(uid, a01))
            require.NoError(t, err)

            res, err := f.service(at(15, tc.hour, 5)).Cancel(ctx, actor, tc.role, a01)
            require.NoError(t, err)
            assert.False(t, res.Cancelled)
            assert.Zero(t, res.Refunded)
            assert.Equal(t, model.StallAvailable, res.Stall.Status)
            assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))
            assert.Equal(t, []string{queue.EventBooked, queue.EventForfeited}, f.pub.types())

            hist, err := f.ledger.ListByUser(ctx, uid, 10)
            require.NoError(t, err)
            require.Len(t, hist, 2)
            assert.Equal(t, model.LedgerForfeit, hist[0].Kind)
        })
    }
}

func TestStaleBookingDoesNotBlockNextDay(t *testing.T) {
    f := newFixture(t)
    first := testdb.CreateUser(t, f.db, "nina", model.RoleUser, 500)
    second := testdb.CreateUser(t, f.db, "otto", model.RoleUser, 500)
    a01 := testdb.StallID(t, f.db, "A01")
    ctx := context.Background()

    _, err := f.service(at(14, 12, 0)).Book(ctx, creditBooking(first, a01))
    require.NoError(t, err)

    st, err := f.service(at(15, 8, 0)).Book(ctx, creditBooking(second, a01))
    require.NoError(t, err)
    assert.True(t, st.IsBookedBy(second))
    assert.Equal(t, "2025-03-15", st.BookingDate)
    assert.Equal(t, int64(200), testdb.Credit(t, f.db, first))
    assert.Equal(t, int64(200), testdb.Credit(t, f.db, second))
    assert.Equal(t, []string{queue.EventBooked, queue.EventForfeited, queue.EventBooked}, f.pub.types())
}

func TestWorkedExample(t *testing.T) {
    ctx := context.Background()

    t.Run("book then cancel", func(t *testing.T) {
        f := newFixture(t)
        uid := testdb.CreateUser(t, f.db, "mia", model.RoleUser, 500)
        a01 := testdb.StallID(t, f.db, "A01")
        svc := f.service(at(14, 9, 0))

        _, err := svc.Book(ctx, creditBooking(uid, a01))
        require.NoError(t, err)
        assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))

        _, err = svc.Cancel(ctx, uid, model.RoleUser, a01)
        require.NoError(t, err)
        assert.Equal(t, int64(500), testdb.Credit(t, f.db, uid))
    })

    t.Run("book then next day", func(t *testing.T) {
        f := newFixture(t)
        uid := testdb.CreateUser(t, f.db, "mia", model.RoleUser, 500)
        a01 := testdb.StallID(t, f.db, "A01")

        _, err := f.service(at(14, 9, 0)).Book(ctx, creditBooking(uid, a01))
        require.NoError(t, err)

        board, err := f.service(at(15, 9, 0)).Board(ctx, "", "")
        require.NoError(t, err)
        for _, z := range board.Zones {
            for _, s := range z.Stalls {
                assert.Equal(t, model.StallAvailable, s.Status, s.Name)
            }
        }
        assert.Equal(t, int64(200), testdb.Credit(t, f.db, uid))
    })
}

func TestBoard(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "nora", model.RoleUser, 1000)
    b03 := testdb.StallID(t, f.db, "B03")
    svc := f.service(at(14, 11, 0))
    ctx := context.Background()

    req := creditBooking(uid, b03)
    req.Details.ShopName = "Silk Corner"
    _, err := svc.Book(ctx, req)
    require.NoError(t, err)

    all, err := svc.Board(ctx, "", "")
    require.NoError(t, err)
    require.Len(t, all.Zones, 3)
    assert.Equal(t, "Food Court", all.ActiveZone)
    assert.Equal(t, market.StatusOpen, all.Market.Status)
    assert.False(t, all.Market.CanCancel)

    picked, err := svc.Board(ctx, "", "IT Zone")
    require.NoError(t, err)
    assert.Equal(t, "IT Zone", picked.ActiveZone)

    found, err := svc.Board(ctx, "silk", "IT Zone")
    require.NoError(t, err)
    require.Len(t, found.Zones, 1)
    assert.Equal(t, "Fashion Street", found.ActiveZone)
    require.Len(t, found.Zones[0].Stalls, 1)
    assert.Equal(t, "B03", found.Zones[0].Stalls[0].Name)

    none, err := svc.Board(ctx, "nothing like this", "")
    require.NoError(t, err)
    assert.Empty(t, none.Zones)
    assert.Empty(t, none.ActiveZone)
}

func TestAdminSetCredit(t *testing.T) {
    f := newFixture(t)
    uid := testdb.CreateUser(t, f.db, "omar", model.RoleUser, 120)
    admin := testdb.CreateUser(t, f.db, "root", model.RoleAdmin, 0)
    svc := f.service(at(14, 9, 0))
    ctx := context.Background()

    _, err := svc.AdminSetCredit(ctx, admin, uid, -1)
    require.ErrorIs(t, err, ErrInvalidInput)

    u, err := svc.AdminSetCredit(ctx, admin, uid, 75)
    require.NoError(t, err)
    assert.Equal(t, int64(75), u.Credit)

    _, err = svc.AdminSetCredit(ctx, admin, 9999, 10)
    assert.ErrorIs(t, err, repository.ErrNotFound)

    hist, err := f.ledger.ListByUser(ctx, uid, 10)
    require.NoError(t, err)
    require.Len(t, hist, 1)
    assert.Equal(t, model.LedgerAdminSet, hist[0].Kind)
    assert.Contains(t, hist[0].Reason, "previous balance 120")
}

func TestRunDailyRolloverStops(t *testing.T) {
    f := newFixture(t)
    svc := f.service(at(14, 9, 0))
    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() {
        svc.RunDailyRollover(ctx, 5*time.Millisecond)
        close(done)
    }()
    time.Sleep(20 * time.Millisecond)
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("rollover loop did not stop")
    }
}

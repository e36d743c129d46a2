package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/market-stall-booking/internal/database/testdb"
	"github.com/iliyamo/market-stall-booking/internal/model"
)

func withTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func booking(userID uint64, date string) model.Booking {
	return model.Booking{
		ShopDetails: model.ShopDetails{ShopName: "Noodle Bar", Phone: "0812345678", ProductCategory: "food"},
		BookedBy:    userID,
		BookingDate: date,
		PaymentRef:  model.CreditPaymentRef,
	}
}

func TestStallListGroupsByZoneInDeclarationOrder(t *testing.T) {
	db := testdb.New(t)
	stalls, err := NewStallRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, stalls, 36)

	zones := GroupByZone(stalls)
	require.Len(t, zones, 3)
	assert.Equal(t, "Food Court", zones[0].Name)
	assert.Equal(t, "Fashion Street", zones[1].Name)
	assert.Equal(t, "IT Zone", zones[2].Name)
	assert.Equal(t, "A01", zones[0].Stalls[0].Name)
	assert.Equal(t, "A12", zones[0].Stalls[11].Name)
}

func TestStallGetByIDNotFound(t *testing.T) {
	db := testdb.New(t)
	_, err := NewStallRepo(db).GetByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrStallNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReserveIsConditional(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	bob := testdb.CreateUser(t, db, "bob", model.RoleUser, 0)
	id := testdb.StallID(t, db, "A01")

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, id, booking(alice, "2025-03-14")))
	})
	withTx(t, db, func(tx *sql.Tx) {
		err := repo.ReserveTx(ctx, tx, id, booking(bob, "2025-03-14"))
		assert.ErrorIs(t, err, ErrAlreadyBooked)
		assert.ErrorIs(t, err, ErrConflict)
	})
	withTx(t, db, func(tx *sql.Tx) {
		assert.ErrorIs(t, repo.ReserveTx(ctx, tx, 9999, booking(bob, "2025-03-14")), ErrStallNotFound)
	})

	s, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StallBooked, s.Status)
	assert.Equal(t, model.PaymentPaid, s.PaymentStatus)
	require.NotNil(t, s.BookedBy)
	assert.Equal(t, alice, *s.BookedBy)
	assert.Equal(t, "Noodle Bar", s.ShopName)
}

func TestReleaseClearsFieldsAndIsIdempotent(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	id := testdb.StallID(t, db, "B03")

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, id, booking(alice, "2025-03-14")))
	})
	booked, err := repo.GetByID(ctx, id)
	require.NoError(t, err)

	withTx(t, db, func(tx *sql.Tx) {
		ok, err := repo.ReleaseTx(ctx, tx, booked)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ReleaseTx(ctx, tx, booked)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	s, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Stall{
		ID: id, Name: "B03", Zone: "Fashion Street", Price: 300,
		Status: model.StallAvailable, PaymentStatus: model.PaymentPending,
	}, s)
}

func TestReleaseIgnoresNewerBooking(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	bob := testdb.CreateUser(t, db, "bob", model.RoleUser, 0)
	id := testdb.StallID(t, db, "A02")

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, id, booking(alice, "2025-03-13")))
	})
	stale, err := repo.GetByID(ctx, id)
	require.NoError(t, err)

	// The stall changes hands after the stale snapshot was taken.
	_, err = db.Exec("UPDATE stalls SET booked_by = ?, booking_date = '2025-03-14' WHERE id = ?", bob, id)
	require.NoError(t, err)

	withTx(t, db, func(tx *sql.Tx) {
		ok, err := repo.ReleaseTx(ctx, tx, stale)
		require.NoError(t, err)
		assert.False(t, ok)
	})
	s, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.IsBookedBy(bob))
}

func TestRolloverStaleReleasesOnlyOtherDays(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	old := testdb.StallID(t, db, "A01")
	today := testdb.StallID(t, db, "A02")

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, old, booking(alice, "2025-03-13")))
		require.NoError(t, repo.ReserveTx(ctx, tx, today, booking(alice, "2025-03-14")))
	})

	withTx(t, db, func(tx *sql.Tx) {
		released, err := repo.RolloverStaleTx(ctx, tx, "2025-03-14")
		require.NoError(t, err)
		require.Len(t, released, 1)
		assert.Equal(t, old, released[0].ID)
	})
	withTx(t, db, func(tx *sql.Tx) {
		released, err := repo.RolloverStaleTx(ctx, tx, "2025-03-14")
		require.NoError(t, err)
		assert.Empty(t, released)
	})

	s, err := repo.GetByID(ctx, today)
	require.NoError(t, err)
	assert.True(t, s.IsBooked())
	s, err = repo.GetByID(ctx, old)
	require.NoError(t, err)
	assert.False(t, s.IsBooked())
}

func TestSearchMatchesShopNameCaseInsensitive(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	c05 := testdb.StallID(t, db, "C05")
	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, c05, booking(alice, "2025-03-14")))
	})

	got, err := repo.Search(ctx, "noodle")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "IT Zone", got[0].Zone)

	got, err = repo.Search(ctx, "pizza")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	a01, c05 := testdb.StallID(t, db, "A01"), testdb.StallID(t, db, "C05")
	sale := booking(alice, "2025-03-14")
	sale.ShopName = "50% Off_Outlet!"
	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, a01, sale))
		require.NoError(t, repo.ReserveTx(ctx, tx, c05, booking(alice, "2025-03-14")))
	})

	for _, q := range []string{"%", "_", "!", "0% off_"} {
		got, err := repo.Search(ctx, q)
		require.NoError(t, err, q)
		require.Len(t, got, 1, q)
		assert.Equal(t, "A01", got[0].Name, q)
	}

	got, err := repo.Search(ctx, "noodle%")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBookedTotalsAndListBooked(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewStallRepo(db)
	alice := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	a01, c01 := testdb.StallID(t, db, "A01"), testdb.StallID(t, db, "C01")
	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.ReserveTx(ctx, tx, a01, booking(alice, "2025-03-14")))
		require.NoError(t, repo.ReserveTx(ctx, tx, c01, booking(alice, "2025-03-14")))
	})

	count, sales, err := repo.BookedTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(800), sales)

	booked, err := repo.ListBooked(ctx)
	require.NoError(t, err)
	require.Len(t, booked, 2)
	assert.Equal(t, "alice", booked[0].Username)
}

func TestUserDebitNeverGoesNegative(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := testdb.CreateUser(t, db, "alice", model.RoleUser, 250)

	withTx(t, db, func(tx *sql.Tx) {
		bal, err := users.DebitTx(ctx, tx, id, 300)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(250), bal)

		bal, err = users.DebitTx(ctx, tx, id, 250)
		require.NoError(t, err)
		assert.Equal(t, int64(0), bal)

		bal, err = users.CreditTx(ctx, tx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), bal)
	})
	assert.Equal(t, int64(0), testdb.Credit(t, db, id))
}

func TestUserLedgerOpsUnknownUser(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	users := NewUserRepo(db)

	withTx(t, db, func(tx *sql.Tx) {
		_, err := users.CreditTx(ctx, tx, 404, 10)
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = users.DebitTx(ctx, tx, 404, 10)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, users.SetCreditTx(ctx, tx, 404, 10), ErrUserNotFound)
	})
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	users := NewUserRepo(db)

	id, err := users.Create(ctx, "carol", "pw", model.RoleUser, 4)
	require.NoError(t, err)
	_, err = users.Create(ctx, " carol ", "pw", model.RoleUser, 4)
	assert.True(t, errors.Is(err, ErrUsernameExists))

	u, err := users.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, int64(0), u.Credit)
	assert.NotEmpty(t, u.CreatedAt)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLedgerAppendAndList(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	ledger := NewLedgerRepo(db)
	id := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)
	stall := testdb.StallID(t, db, "A01")

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, ledger.AppendTx(ctx, tx, &model.LedgerEvent{
			UserID: id, Kind: model.LedgerTopUp, Amount: 500, BalanceAfter: 500, OccurredAt: "2025-03-14T09:00:00+07:00",
		}))
		require.NoError(t, ledger.AppendTx(ctx, tx, &model.LedgerEvent{
			UserID: id, ActorID: &id, Kind: model.LedgerDebit, Amount: 300, BalanceAfter: 200,
			StallID: &stall, OccurredAt: "2025-03-14T09:01:00+07:00",
		}))
	})

	events, err := ledger.ListByUser(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.LedgerDebit, events[0].Kind)
	require.NotNil(t, events[0].StallID)
	assert.Equal(t, stall, *events[0].StallID)
	assert.Len(t, events[0].ID, 36)
	assert.Nil(t, events[1].ActorID)
}

func TestReviewSummaryRoundsAverage(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	reviews := NewReviewRepo(db)

	s, err := reviews.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewSummary{}, s)

	for _, r := range []int{5, 4, 4} {
		require.NoError(t, reviews.Create(ctx, &model.Review{ShopName: "Noodle Bar", Rating: r, Comment: "ok", ReviewerName: "alice"}))
	}
	s, err = reviews.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 4.3, s.AverageRating)

	list, err := reviews.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Greater(t, list[0].ID, list[1].ID)
}

func TestTokenRepoLifecycle(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	tokens := NewTokenRepo(db)
	id := testdb.CreateUser(t, db, "alice", model.RoleUser, 0)

	require.NoError(t, tokens.StoreRefresh(ctx, id, "live", tokens.now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, id, "old", tokens.now().Add(-time.Hour)))

	uid, err := tokens.ValidateRefresh(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, id, uid)

	_, err = tokens.ValidateRefresh(ctx, "old")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
	_, err = tokens.ValidateRefresh(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	require.NoError(t, tokens.RevokeAllForUser(ctx, id))
	_, err = tokens.ValidateRefresh(ctx, "live")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

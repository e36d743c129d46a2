package service

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/market-stall-booking/internal/market"
    "github.com/iliyamo/market-stall-booking/internal/model"
)

// UserStore is the part of the user repository that moves money.  Every
// method runs inside the caller's transaction.
type UserStore interface {
    GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error)
    CreditTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (int64, error)
    DebitTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (int64, error)
    SetCreditTx(ctx context.Context, tx *sql.Tx, id uint64, balance int64) error
}

// EventStore appends audit rows to the ledger event log.
type EventStore interface {
    AppendTx(ctx context.Context, tx *sql.Tx, ev *model.LedgerEvent) error
}

// Ledger owns user balances.  Each movement and its audit row commit
// together.
type Ledger struct {
    db     *sql.DB
    users  UserStore
    events EventStore
    clock  market.Clock
    window market.Window
}

// NewLedger wires a Ledger.  A nil clock means the system clock.
func NewLedger(db *sql.DB, users UserStore, events EventStore, clock market.Clock, window market.Window) *Ledger {
    if db == nil || users == nil || events == nil {
        panic("nil dependency passed to NewLedger")
    }
    if clock == nil {
        clock = market.SystemClock
    }
    return &Ledger{db: db, users: users, events: events, clock: clock, window: window}
}

// Credit adds a non-negative amount to the user's balance and returns
// the new balance.
func (l *Ledger) Credit(ctx context.Context, userID uint64, amount int64, reason string) (int64, error) {
    if amount < 0 {
        return 0, invalid("amount must not be negative")
    }
    var balance int64
    err := inTx(ctx, l.db, func(tx *sql.Tx) error {
        var err error
        if balance, err = l.users.CreditTx(ctx, tx, userID, amount); err != nil {
            return err
        }
        return l.events.AppendTx(ctx, tx, &model.LedgerEvent{
            UserID: userID, ActorID: &userID, Kind: model.LedgerTopUp,
            Amount: amount, BalanceAfter: balance, Reason: reason,
            OccurredAt: stamp(l.window, l.clock.Now()),
        })
    })
    return balance, err
}

// Debit subtracts amount when the balance covers it.  It fails with
// repository.ErrInsufficientFunds otherwise and the balance is untouched.
func (l *Ledger) Debit(ctx context.Context, userID uint64, amount int64, reason string) (int64, error) {
    if amount < 0 {
        return 0, invalid("amount must not be negative")
    }
    var balance int64
    err := inTx(ctx, l.db, func(tx *sql.Tx) error {
        var err error
        if balance, err = l.users.DebitTx(ctx, tx, userID, amount); err != nil {
            return err
        }
        return l.events.AppendTx(ctx, tx, &model.LedgerEvent{
            UserID: userID, ActorID: &userID, Kind: model.LedgerDebit,
            Amount: amount, BalanceAfter: balance, Reason: reason,
            OccurredAt: stamp(l.window, l.clock.Now()),
        })
    })
    return balance, err
}

func stamp(w market.Window, t time.Time) string {
    return w.Local(t).Format(time.RFC3339)
}

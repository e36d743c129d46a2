package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iliyamo/market-stall-booking/internal/model"
)

// LedgerRepo appends to and reads the `ledger_events` audit log.  Rows are
// never updated or deleted.
type LedgerRepo struct{ db *sql.DB }

func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// AppendTx writes ev inside tx, assigning a fresh UUID when ev.ID is empty.
func (r *LedgerRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev *model.LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO ledger_events
		(id, user_id, actor_id, kind, amount, balance_after, stall_id, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, nullableID(ev.ActorID), ev.Kind, ev.Amount, ev.BalanceAfter,
		nullableID(ev.StallID), ev.Reason, ev.OccurredAt)
	return err
}

// ListByUser returns the user's events, newest first, at most limit rows.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LedgerEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, actor_id, kind, amount, balance_after,
		stall_id, reason, occurred_at FROM ledger_events WHERE user_id = ? ORDER BY seq DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.LedgerEvent{}
	for rows.Next() {
		var (
			ev             model.LedgerEvent
			actor, stallID sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &actor, &ev.Kind, &ev.Amount, &ev.BalanceAfter,
			&stallID, &ev.Reason, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.ActorID = idPtr(actor)
		ev.StallID = idPtr(stallID)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

func idPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/market-stall-booking/internal/model"
)

// StallRepo owns the fixed stall inventory and its per-day occupancy.
// Stalls are provisioned by the seeder and never inserted or deleted here;
// only the booking columns change.
type StallRepo struct {
	db *sql.DB
}

// NewStallRepo returns a new StallRepo bound to the given database.
func NewStallRepo(db *sql.DB) *StallRepo { return &StallRepo{db: db} }

// DB exposes the handle so services can begin transactions.
func (r *StallRepo) DB() *sql.DB { return r.db }

const stallColumns = `id, name, zone, price, status, shop_name, phone, product_category,
	booking_date, booked_by, payment_ref, payment_status`

func scanStall(row rowScanner) (model.Stall, error) {
	var (
		s                                    model.Stall
		shop, phone, category, date, payRef sql.NullString
		bookedBy                             sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.Name, &s.Zone, &s.Price, &s.Status,
		&shop, &phone, &category, &date, &bookedBy, &payRef, &s.PaymentStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Stall{}, ErrStallNotFound
	}
	if err != nil {
		return model.Stall{}, err
	}
	s.ShopName = shop.String
	s.Phone = phone.String
	s.ProductCategory = category.String
	s.BookingDate = date.String
	s.PaymentRef = payRef.String
	if bookedBy.Valid {
		id := uint64(bookedBy.Int64)
		s.BookedBy = &id
	}
	return s, nil
}

func (r *StallRepo) query(ctx context.Context, q string, args ...any) ([]model.Stall, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stall
	for rows.Next() {
		s, err := scanStall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// List returns every stall in inventory order.
func (r *StallRepo) List(ctx context.Context) ([]model.Stall, error) {
	return r.query(ctx, "SELECT "+stallColumns+" FROM stalls ORDER BY id")
}

// Search returns the stalls whose shop name contains q, case-insensitively,
// in inventory order.  Available stalls have no shop name and never match.
func (r *StallRepo) Search(ctx context.Context, q string) ([]model.Stall, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return r.List(ctx)
	}
	return r.query(ctx,
		"SELECT "+stallColumns+" FROM stalls WHERE LOWER(shop_name) LIKE ? ESCAPE '!' ORDER BY id",
		"%"+likeEscaper.Replace(q)+"%")
}

// likeEscaper quotes LIKE wildcards with '!', an escape character MySQL
// and SQLite read the same way.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// GetByID fetches a stall, returning ErrStallNotFound for unknown ids.
func (r *StallRepo) GetByID(ctx context.Context, id uint64) (model.Stall, error) {
	return scanStall(r.db.QueryRowContext(ctx,
		"SELECT "+stallColumns+" FROM stalls WHERE id = ?", id))
}

// GetTx is GetByID inside tx.
func (r *StallRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Stall, error) {
	return scanStall(tx.QueryRowContext(ctx,
		"SELECT "+stallColumns+" FROM stalls WHERE id = ?", id))
}

// ReserveTx moves a stall from available to booked in one conditional
// update and marks it paid.  When no row changes the stall was either
// taken first (ErrAlreadyBooked) or does not exist (ErrStallNotFound).
func (r *StallRepo) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, b model.Booking) error {
	res, err := tx.ExecContext(ctx, `UPDATE stalls
		SET status = ?, shop_name = ?, phone = ?, product_category = ?,
		    booking_date = ?, booked_by = ?, payment_ref = ?, payment_status = ?
		WHERE id = ? AND status = ?`,
		model.StallBooked, b.ShopName, b.Phone, b.ProductCategory,
		b.BookingDate, b.BookedBy, b.PaymentRef, model.PaymentPaid,
		id, model.StallAvailable)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetTx(ctx, tx, id); err != nil {
		return err
	}
	return ErrAlreadyBooked
}

// ReleaseTx returns a booked stall to available and clears every booking
// column.  The update only matches while the row still carries the booking
// observed in s (same booker and date), so a booking made after s was read
// is never cleared.  It reports whether a row was released; releasing an
// available stall is a no-op.
func (r *StallRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, s model.Stall) (bool, error) {
	if !s.IsBooked() || s.BookedBy == nil {
		return false, nil
	}
	res, err := tx.ExecContext(ctx, `UPDATE stalls
		SET status = ?, shop_name = NULL, phone = NULL, product_category = NULL,
		    booking_date = NULL, booked_by = NULL, payment_ref = NULL, payment_status = ?
		WHERE id = ? AND status = ? AND booked_by = ? AND booking_date = ?`,
		model.StallAvailable, model.PaymentPending,
		s.ID, model.StallBooked, *s.BookedBy, s.BookingDate)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// StaleBookedTx lists booked stalls whose booking date is not today.
func (r *StallRepo) StaleBookedTx(ctx context.Context, tx *sql.Tx, today string) ([]model.Stall, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+stallColumns+" FROM stalls WHERE status = ? AND (booking_date IS NULL OR booking_date <> ?) ORDER BY id",
		model.StallBooked, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stall
	for rows.Next() {
		s, err := scanStall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RolloverStaleTx releases every booked stall whose booking date is not
// today, without touching any balance, and returns the stalls it released.
// Each release is conditional on the booking observed by the scan.
func (r *StallRepo) RolloverStaleTx(ctx context.Context, tx *sql.Tx, today string) ([]model.Stall, error) {
	stale, err := r.StaleBookedTx(ctx, tx, today)
	if err != nil {
		return nil, err
	}
	var released []model.Stall
	for _, s := range stale {
		ok, err := r.ReleaseTx(ctx, tx, s)
		if err != nil {
			return nil, err
		}
		if ok {
			released = append(released, s)
		}
	}
	return released, nil
}

// ListBooked returns booked stalls joined with the booker's username.
func (r *StallRepo) ListBooked(ctx context.Context) ([]model.BookedStall, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT s.id, s.name, s.zone, s.price, s.status, s.shop_name, s.phone,
		s.product_category, s.booking_date, s.booked_by, s.payment_ref, s.payment_status, u.username
		FROM stalls s JOIN users u ON u.id = s.booked_by
		WHERE s.status = ? ORDER BY s.id`, model.StallBooked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BookedStall
	for rows.Next() {
		var (
			b                                    model.BookedStall
			shop, phone, category, date, payRef sql.NullString
			bookedBy                             sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Zone, &b.Price, &b.Status, &shop, &phone,
			&category, &date, &bookedBy, &payRef, &b.PaymentStatus, &b.Username); err != nil {
			return nil, err
		}
		b.ShopName, b.Phone, b.ProductCategory = shop.String, phone.String, category.String
		b.BookingDate, b.PaymentRef = date.String, payRef.String
		if bookedBy.Valid {
			id := uint64(bookedBy.Int64)
			b.BookedBy = &id
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BookedTotals returns the number of booked stalls and the sum of their
// prices.
func (r *StallRepo) BookedTotals(ctx context.Context) (count int64, sales int64, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(price), 0) FROM stalls WHERE status = ?", model.StallBooked).
		Scan(&count, &sales)
	return count, sales, err
}

// GroupByZone groups stalls by zone in order of first appearance, keeping
// the order of stalls within each zone.
func GroupByZone(stalls []model.Stall) []model.Zone {
	var zones []model.Zone
	index := map[string]int{}
	for _, s := range stalls {
		i, ok := index[s.Zone]
		if !ok {
			i = len(zones)
			index[s.Zone] = i
			zones = append(zones, model.Zone{Name: s.Zone})
		}
		zones[i].Stalls = append(zones[i].Stalls, s)
	}
	return zones
}

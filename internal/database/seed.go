package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ZoneSpec describes one zone of the fixed inventory.
type ZoneSpec struct {
	Name   string
	Prefix string
	Price  int64
	Count  int
}

// DefaultInventory is the market's stall layout, in declaration order.
var DefaultInventory = []ZoneSpec{
	{Name: "Food Court", Prefix: "A", Price: 300, Count: 12},
	{Name: "Fashion Street", Prefix: "B", Price: 300, Count: 12},
	{Name: "IT Zone", Prefix: "C", Price: 500, Count: 12},
}

// SeedUser is an account provisioned at startup when it does not exist yet.
type SeedUser struct {
	Username     string
	PasswordHash string
	Role         string
	Credit       int64
}

// SeedInventory inserts the stalls of zones when the stalls table is empty.
// It returns the number of stalls inserted.
func SeedInventory(ctx context.Context, db *sql.DB, zones []ZoneSpec) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM stalls").Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	inserted := 0
	for _, z := range zones {
		for i := 1; i <= z.Count; i++ {
			name := fmt.Sprintf("%s%02d", z.Prefix, i)
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO stalls (name, zone, price, status, payment_status) VALUES (?, ?, ?, 'available', 'pending')",
				name, z.Name, z.Price); err != nil {
				return 0, fmt.Errorf("insert stall %s: %w", name, err)
			}
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return inserted, nil
}

// SeedUsers creates each account whose username is not taken.  Users with
// an empty password hash are skipped.
func SeedUsers(ctx context.Context, db *sql.DB, users []SeedUser) error {
	for _, u := range users {
		if u.Username == "" || u.PasswordHash == "" {
			continue
		}
		var exists int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", u.Username).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, role, credit) VALUES (?, ?, ?, ?)",
			u.Username, u.PasswordHash, u.Role, u.Credit); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return nil
}

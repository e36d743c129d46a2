// Package testdb hands tests a migrated, seeded in-memory SQLite database.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/market-stall-booking/internal/config"
	"github.com/iliyamo/market-stall-booking/internal/database"
)

// New opens a private in-memory database with the schema applied and the
// default inventory seeded.  It is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db, config.DriverSQLite))
	_, err = database.SeedInventory(ctx, db, database.DefaultInventory)
	require.NoError(t, err)
	return db
}

// CreateUser inserts a user with the given credit and returns its id.
func CreateUser(t testing.TB, db *sql.DB, username, role string, credit int64) uint64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO users (username, password_hash, role, credit) VALUES (?, 'x', ?, ?)",
		username, role, credit)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// Credit reads a user's balance.
func Credit(t testing.TB, db *sql.DB, userID uint64) int64 {
	t.Helper()
	var c int64
	require.NoError(t, db.QueryRow("SELECT credit FROM users WHERE id = ?", userID).Scan(&c))
	return c
}

// StallID looks up a stall by its display name, e.g. "A01".
func StallID(t testing.TB, db *sql.DB, name string) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, db.QueryRow("SELECT id FROM stalls WHERE name = ?", name).Scan(&id))
	return id
}

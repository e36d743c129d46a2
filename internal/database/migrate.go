package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/iliyamo/market-stall-booking/internal/config"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates any missing tables for the given driver.  Every
// statement is idempotent so Migrate can run on each start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var file string
	switch driver {
	case config.DriverMySQL:
		file = "schema/mysql.sql"
	case config.DriverSQLite:
		file = "schema/sqlite.sql"
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", file, err)
		}
	}
	return nil
}

// splitStatements splits a schema file on ';'.  The schema files contain no
// string literals with semicolons.
func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

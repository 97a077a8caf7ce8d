package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Statements returns the schema split into individual statements. The DDL
// sticks to the subset shared by PostgreSQL and SQLite.
func Statements() []string {
	var out []string
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Migrate creates the attendance tables and indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Str("driver", db.DriverName()).Int("statements", len(Statements())).Msg("schema migrated")
	return nil
}

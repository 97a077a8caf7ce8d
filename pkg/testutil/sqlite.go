package testutil

import (
	"context"
	"testing"

	"github.com/gymflow/gymflow-backend/pkg/config"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// NewSQLiteDB opens a migrated in-memory SQLite database that is closed when
// the test ends. Every call returns an independent database.
func NewSQLiteDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   ":memory:",
	}, logger.Nop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	return db
}

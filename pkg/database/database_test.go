package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/pkg/config"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

func newSQLite(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	var count int
	require.NoError(t, db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('schedules', 'attendance_events')`))
	assert.Equal(t, 2, count)
}

func TestHealth(t *testing.T) {
	db := newSQLite(t)

	status := db.Health(context.Background())
	assert.Equal(t, "up", status["status"])
	assert.Equal(t, config.DriverSQLite, status["driver"])
}

func TestMapSQLiteError(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	insert := `INSERT INTO schedules (id, employee_id, schedule_date, start_time, end_time, status, created_at, updated_at)
		VALUES (?, 'emp-1', '2026-03-02', '09:00', '17:00', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`

	_, err := db.ExecContext(ctx, insert, "a", "active")
	require.NoError(t, err)

	t.Run("unique key", func(t *testing.T) {
		_, err := db.ExecContext(ctx, insert, "b", "active")
		appErr := database.MapError(err)
		require.NotNil(t, appErr)
		assert.True(t, errors.Is(appErr, errors.ErrConflict))
		assert.Equal(t, "the employee already has a schedule on this date", appErr.Message)
	})

	t.Run("check constraint", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `INSERT INTO schedules (id, employee_id, schedule_date, start_time, end_time, status, created_at, updated_at)
			VALUES ('c', 'emp-2', '2026-03-02', '09:00', '17:00', 'paused', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
		appErr := database.MapError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
		assert.Contains(t, appErr.Details, "status")
	})

	t.Run("non constraint errors pass through", func(t *testing.T) {
		assert.Nil(t, database.MapError(assert.AnError))
	})
}

func TestStatements(t *testing.T) {
	stmts := database.Statements()
	require.Len(t, stmts, 6)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS schedules")
}

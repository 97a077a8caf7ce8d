//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/repository"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/testutil"
)

// ============================================================================
// INTEGRATION TESTS: PostgreSQL
// ============================================================================

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error

	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func TestPostgres_ScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewScheduleRepository(suite.DB)

	rec := suite.Fixtures.Schedule("emp-1", monday)
	require.NoError(t, repo.Upsert(ctx, rec))

	moved := suite.Fixtures.Schedule("emp-1", monday)
	moved.EndTime = "18:00"
	require.NoError(t, repo.Upsert(ctx, moved))
	assert.Equal(t, rec.ID, moved.ID, "(employee, date) is unique")

	got, err := repo.GetByKey(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.Equal(t, "18:00", got.EndTime)
	assert.Equal(t, monday, got.Date)

	require.NoError(t, repo.Delete(ctx, rec.ID))
	_, err = repo.GetByID(ctx, rec.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	again := suite.Fixtures.Schedule("emp-1", monday)
	require.NoError(t, repo.Upsert(ctx, again), "a deleted key can be scheduled again")
}

func TestPostgres_EventsByDate(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewAttendanceRepository(suite.DB)

	require.NoError(t, repo.Create(ctx, suite.Fixtures.CheckOut("emp-1", monday, "17:00")))
	require.NoError(t, repo.Create(ctx, suite.Fixtures.CheckIn("emp-1", monday, "09:00")))
	require.NoError(t, repo.Create(ctx, suite.Fixtures.CheckIn("emp-2", monday.AddDays(1), "09:00")))

	events, err := repo.ListByDate(ctx, monday)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.CheckIn, events[0].Kind, "ordered by timestamp")
	assert.Equal(t, domain.CheckOut, events[1].Kind)

	keyed, err := repo.ListByKey(ctx, "emp-2", monday.AddDays(1))
	require.NoError(t, err)
	assert.Len(t, keyed, 1)
}

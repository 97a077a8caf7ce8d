package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/events"
	"github.com/gymflow/gymflow-backend/internal/attendance/guard"
	"github.com/gymflow/gymflow-backend/internal/attendance/service"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/messaging"
	"github.com/gymflow/gymflow-backend/pkg/testutil"
)

var monday = domain.NewDate(2024, time.March, 4)

type fixture struct {
	schedules  *service.ScheduleService
	attendance *service.AttendanceService
	sink       *testutil.MockPublisher
}

func newFixture(t *testing.T, loc *time.Location, now time.Time) *fixture {
	t.Helper()
	log := logger.Nop()
	scheduleStore := store.NewMemorySchedules()
	eventStore := store.NewMemoryEvents()
	sink := testutil.NewMockPublisher()
	publisher := events.NewWithSink(sink, "test", log)

	return &fixture{
		schedules: service.NewScheduleService(guard.New(scheduleStore, eventStore, log), scheduleStore, publisher, log),
		attendance: service.NewAttendanceService(eventStore, publisher, loc, log).
			WithClock(func() time.Time { return now }),
		sink: sink,
	}
}

func shift(emp string, date domain.Date) *domain.ScheduleRecord {
	return &domain.ScheduleRecord{
		EmployeeID:   emp,
		EmployeeName: "Employee " + emp,
		Date:         date,
		StartTime:    "09:00",
		EndTime:      "17:00",
	}
}

func TestScheduleService_CreateDefaultsAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.UTC, time.Now())

	rec := shift("emp-1", monday)
	require.NoError(t, f.schedules.Create(ctx, rec))

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.ScheduleActive, rec.Status)
	f.sink.AssertEventPublished(t, messaging.EventScheduleCreated)

	again := shift("emp-1", monday)
	again.EndTime = "18:00"
	require.NoError(t, f.schedules.Create(ctx, again))
	assert.Equal(t, rec.ID, again.ID, "create on an existing key updates it")

	got, err := f.schedules.Get(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.Equal(t, "18:00", got.EndTime)
}

func TestScheduleService_GetMissing(t *testing.T) {
	f := newFixture(t, time.UTC, time.Now())

	_, err := f.schedules.Get(context.Background(), "emp-1", monday)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestScheduleService_UpdateMovePublishesPreviousDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.UTC, time.Now())

	rec := shift("emp-1", monday)
	require.NoError(t, f.schedules.Create(ctx, rec))
	f.sink.Reset()

	moved := *rec
	moved.Date = monday.AddDays(1)
	moved.Status = ""
	require.NoError(t, f.schedules.Update(ctx, &moved))

	published := f.sink.Events()
	require.Len(t, published, 1)
	data := published[0].Payload.(messaging.ScheduleChangedEvent)
	assert.Equal(t, "2024-03-05", data.Date)
	assert.Equal(t, "2024-03-04", data.PreviousDate)
	assert.Equal(t, "active", data.Status, "empty status keeps the stored one")
}

func TestScheduleService_DeleteBlockedAfterCheckIn(t *testing.T) {
	ctx := context.Background()
	now := monday.In(time.UTC).Add(9 * time.Hour)
	f := newFixture(t, time.UTC, now)

	rec := shift("emp-1", monday)
	require.NoError(t, f.schedules.Create(ctx, rec))

	_, err := f.attendance.CheckIn(ctx, "emp-1", "Employee emp-1", domain.SourceQR)
	require.NoError(t, err)
	f.sink.Reset()

	err = f.schedules.Delete(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMutationBlocked))
	f.sink.AssertNoEventsPublished(t)

	ok, err := f.schedules.CanMutate(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.schedules.GetByID(ctx, rec.ID)
	assert.NoError(t, err, "blocked delete leaves the schedule in place")
}

func TestScheduleService_DeletePublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.UTC, time.Now())

	rec := shift("emp-1", monday)
	require.NoError(t, f.schedules.Create(ctx, rec))
	require.NoError(t, f.schedules.Delete(ctx, rec.ID))

	f.sink.AssertEventPublished(t, messaging.EventScheduleDeleted)
	list, err := f.schedules.ListByDate(ctx, monday)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScheduleService_DayStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.UTC, time.Now())

	require.NoError(t, f.schedules.Create(ctx, shift("emp-1", monday)))
	require.NoError(t, f.schedules.Create(ctx, shift("emp-2", monday)))
	cancelled := shift("emp-3", monday)
	cancelled.Status = domain.ScheduleCancelled
	require.NoError(t, f.schedules.Create(ctx, cancelled))

	stats, err := f.schedules.DayStats(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSchedules)
	assert.Equal(t, map[string]int{"09:00-17:00": 2}, stats.SchedulesByTime)
	assert.Equal(t, 16.0, stats.TotalHours)
}

func TestAttendanceService_DateFollowsGymTimeZone(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	// 20:00 UTC on Monday is 03:00 Tuesday in the gym
	now := time.Date(2024, time.March, 4, 20, 0, 0, 0, time.UTC)
	f := newFixture(t, loc, now)

	ev, err := f.attendance.CheckOut(context.Background(), "emp-1", "", "")
	require.NoError(t, err)

	assert.Equal(t, monday.AddDays(1), ev.Date)
	assert.True(t, now.Equal(ev.Timestamp))
	assert.Equal(t, domain.SourceManual, ev.Source)
	assert.Equal(t, domain.CheckOut, ev.Kind)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, monday.AddDays(1), f.attendance.Today())
	f.sink.AssertEventPublished(t, messaging.EventAttendanceRecorded)
}

func TestAttendanceService_RecordKeepsExplicitValues(t *testing.T) {
	f := newFixture(t, time.UTC, time.Now())
	at := monday.In(time.UTC).Add(8 * time.Hour)

	ev, err := f.attendance.Record(context.Background(), &domain.AttendanceEvent{
		EmployeeID: "emp-1",
		Date:       monday,
		Kind:       domain.CheckIn,
		Source:     domain.SourceQR,
		Timestamp:  at,
	})
	require.NoError(t, err)
	assert.Equal(t, monday, ev.Date)
	assert.Equal(t, domain.SourceQR, ev.Source)

	list, err := f.attendance.ListByKey(context.Background(), "emp-1", monday)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ev.ID, list[0].ID)
}

func TestAttendanceService_RecordRejectsInvalid(t *testing.T) {
	f := newFixture(t, time.UTC, time.Now())

	_, err := f.attendance.Record(context.Background(), &domain.AttendanceEvent{
		EmployeeID: "emp-1",
		Kind:       domain.CheckIn,
		Source:     "kiosk",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	f.sink.AssertNoEventsPublished(t)
}

package consumers_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/internal/attendance/consumers"
	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/logger"
	"github.com/gymflow/gymflow-backend/pkg/messaging"
)

type recordingRefresher struct {
	mu    sync.Mutex
	dates []string
	err   error
}

func (r *recordingRefresher) Refresh(_ context.Context, date domain.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dates = append(r.dates, date.String())
	return r.err
}

func (r *recordingRefresher) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dates...)
}

func newRouter(t *testing.T) (*messaging.Router, *recordingRefresher, *recordingRefresher) {
	t.Helper()
	schedules := &recordingRefresher{}
	events := &recordingRefresher{}
	router := messaging.NewRouter()
	consumers.NewChangeHandler(schedules, events, "self", logger.Nop()).Register(router)
	return router, schedules, events
}

func event(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	ev, err := messaging.NewEvent(eventType, "attendance-service", "", data)
	require.NoError(t, err)
	return ev
}

func TestChangeHandler_ScheduleMovedRefreshesBothDates(t *testing.T) {
	router, schedules, events := newRouter(t)

	handled, err := router.Dispatch(context.Background(), event(t, messaging.EventScheduleUpdated, messaging.ScheduleChangedEvent{
		ScheduleID:   "s-1",
		Date:         "2024-03-05",
		PreviousDate: "2024-03-04",
		Instance:     "other",
	}))

	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"2024-03-05", "2024-03-04"}, schedules.seen())
	assert.Empty(t, events.seen())
}

func TestChangeHandler_AttendanceRecordedRefreshesEvents(t *testing.T) {
	router, schedules, events := newRouter(t)

	_, err := router.Dispatch(context.Background(), event(t, messaging.EventAttendanceRecorded, messaging.AttendanceRecordedEvent{
		EventID:  "ev-1",
		Date:     "2024-03-04",
		Kind:     "check-in",
		Instance: "other",
	}))

	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-04"}, events.seen())
	assert.Empty(t, schedules.seen())
}

func TestChangeHandler_SkipsOwnMessages(t *testing.T) {
	router, schedules, events := newRouter(t)

	for _, typ := range []string{messaging.EventScheduleCreated, messaging.EventScheduleDeleted} {
		_, err := router.Dispatch(context.Background(), event(t, typ, messaging.ScheduleChangedEvent{
			Date:     "2024-03-04",
			Instance: "self",
		}))
		require.NoError(t, err)
	}
	_, err := router.Dispatch(context.Background(), event(t, messaging.EventAttendanceRecorded, messaging.AttendanceRecordedEvent{
		Date:     "2024-03-04",
		Instance: "self",
	}))
	require.NoError(t, err)

	assert.Empty(t, schedules.seen())
	assert.Empty(t, events.seen())
}

func TestChangeHandler_Errors(t *testing.T) {
	t.Run("invalid date", func(t *testing.T) {
		router, _, _ := newRouter(t)
		_, err := router.Dispatch(context.Background(), event(t, messaging.EventScheduleCreated, messaging.ScheduleChangedEvent{
			Date:     "not-a-date",
			Instance: "other",
		}))
		assert.Error(t, err)
	})

	t.Run("refresh failure", func(t *testing.T) {
		schedules := &recordingRefresher{err: errors.New("db down")}
		router := messaging.NewRouter()
		consumers.NewChangeHandler(schedules, &recordingRefresher{}, "self", logger.Nop()).Register(router)

		_, err := router.Dispatch(context.Background(), event(t, messaging.EventScheduleCreated, messaging.ScheduleChangedEvent{
			Date:     "2024-03-04",
			Instance: "other",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow-backend/pkg/messaging"
)

func TestNewEvent(t *testing.T) {
	data := messaging.ScheduleChangedEvent{ScheduleID: "s-1", EmployeeID: "emp-1", Date: "2026-03-02"}

	event, err := messaging.NewEvent(messaging.EventScheduleCreated, "attendance-service", "corr-1", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, messaging.EventScheduleCreated, event.Type)
	assert.Equal(t, "corr-1", event.CorrelationID)

	var decoded messaging.ScheduleChangedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestRouter_Dispatch(t *testing.T) {
	router := messaging.NewRouter()

	var seen string
	router.RegisterHandler(messaging.EventAttendanceRecorded, func(ctx context.Context, event *messaging.Event) error {
		seen = messaging.GetCorrelationID(ctx) + "/" + event.Type
		return nil
	})

	ctx := messaging.WithCorrelationID(context.Background(), "corr-9")

	handled, err := router.Dispatch(ctx, &messaging.Event{Type: messaging.EventAttendanceRecorded})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "corr-9/"+messaging.EventAttendanceRecorded, seen)

	handled, err = router.Dispatch(ctx, &messaging.Event{Type: "attendance.unknown"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDiscard(t *testing.T) {
	var sink messaging.Sink = messaging.Discard{}
	assert.NoError(t, sink.Publish(context.Background(), messaging.EventScheduleDeleted, nil))
}

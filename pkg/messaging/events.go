package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventScheduleCreated    = "attendance.schedule.created"
	EventScheduleUpdated    = "attendance.schedule.updated"
	EventScheduleDeleted    = "attendance.schedule.deleted"
	EventAttendanceRecorded = "attendance.event.recorded"
)

// Exchange names
const (
	ExchangeAttendanceEvents = "attendance.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the given struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ============================================================================
// Attendance event payloads
// ============================================================================

// ScheduleChangedEvent is published for schedule create, update and delete.
// PreviousDate is set when an update moved the schedule to another day.
type ScheduleChangedEvent struct {
	ScheduleID   string `json:"schedule_id"`
	EmployeeID   string `json:"employee_id"`
	Date         string `json:"date"`
	PreviousDate string `json:"previous_date,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Status       string `json:"status,omitempty"`
	Instance     string `json:"instance"`
}

// AttendanceRecordedEvent is published for every check-in or check-out
type AttendanceRecordedEvent struct {
	EventID    string    `json:"event_id"`
	EmployeeID string    `json:"employee_id"`
	Date       string    `json:"date"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Instance   string    `json:"instance"`
}

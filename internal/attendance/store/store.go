// Package store defines the schedule and attendance event stores the
// reconciliation engine subscribes to, with in-memory and SQL-backed
// implementations.
package store

import (
	"context"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
)

// Unsubscribe releases a store subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// ScheduleListener receives the full set of schedules of a date after every change
type ScheduleListener func(date domain.Date, records []domain.ScheduleRecord)

// EventListener receives the full set of attendance events of a date after every change
type EventListener func(date domain.Date, events []domain.AttendanceEvent)

// ErrorListener receives failures of a date subscription. The subscription stays open.
type ErrorListener func(date domain.Date, err error)

// ScheduleStore persists planned shifts, one per (employee, date)
type ScheduleStore interface {
	// Get returns the schedule of key, or nil when there is none
	Get(ctx context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error)
	GetByID(ctx context.Context, id string) (*domain.ScheduleRecord, error)
	// Upsert creates or updates a schedule. Without an ID the record is matched
	// by (employee, date), so repeated creates update the same record.
	Upsert(ctx context.Context, record *domain.ScheduleRecord) (string, error)
	Delete(ctx context.Context, id string) error
	ListByDate(ctx context.Context, date domain.Date) ([]domain.ScheduleRecord, error)
	// ListByEmployee pages an employee's schedules newest first. Only dates
	// before the cursor are returned; a zero cursor starts at the newest.
	ListByEmployee(ctx context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error)
	// SubscribeByDate delivers the current schedules of date, then every change
	SubscribeByDate(date domain.Date, onChange ScheduleListener, onError ErrorListener) Unsubscribe
}

// AttendanceStore persists append-only check-in and check-out events
type AttendanceStore interface {
	Record(ctx context.Context, event *domain.AttendanceEvent) (string, error)
	// ListByKey re-reads the events of one employee on one date
	ListByKey(ctx context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error)
	ListByDate(ctx context.Context, date domain.Date) ([]domain.AttendanceEvent, error)
	// SubscribeByDate delivers the current events of date, then every change
	SubscribeByDate(date domain.Date, onChange EventListener, onError ErrorListener) Unsubscribe
}

// SubscriberCounter is implemented by stores that can report open subscriptions
type SubscriberCounter interface {
	SubscriberCount(date domain.Date) int
	TotalSubscribers() int
}

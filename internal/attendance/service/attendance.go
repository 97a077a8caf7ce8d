package service

import (
	"context"
	"time"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/events"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// AttendanceService records check-ins and check-outs
type AttendanceService struct {
	events    store.AttendanceStore
	publisher *events.AttendanceEventPublisher
	location  *time.Location
	now       func() time.Time
	logger    *logger.Logger
}

// NewAttendanceService creates a new attendance service. loc is the gym's
// time zone; an event's calendar day is taken there.
func NewAttendanceService(
	eventStore store.AttendanceStore,
	publisher *events.AttendanceEventPublisher,
	loc *time.Location,
	log *logger.Logger,
) *AttendanceService {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceService{
		events:    eventStore,
		publisher: publisher,
		location:  loc,
		now:       time.Now,
		logger:    log,
	}
}

// WithClock replaces the clock used for default timestamps
func (s *AttendanceService) WithClock(now func() time.Time) *AttendanceService {
	s.now = now
	return s
}

// Location returns the gym time zone
func (s *AttendanceService) Location() *time.Location {
	return s.location
}

// Today returns the current calendar day in the gym time zone
func (s *AttendanceService) Today() domain.Date {
	return domain.DateOf(s.now().In(s.location))
}

// CheckIn records a check-in for an employee now
func (s *AttendanceService) CheckIn(ctx context.Context, employeeID, employeeName string, source domain.EventSource) (*domain.AttendanceEvent, error) {
	return s.Record(ctx, &domain.AttendanceEvent{
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		Kind:         domain.CheckIn,
		Source:       source,
	})
}

// CheckOut records a check-out for an employee now
func (s *AttendanceService) CheckOut(ctx context.Context, employeeID, employeeName string, source domain.EventSource) (*domain.AttendanceEvent, error) {
	return s.Record(ctx, &domain.AttendanceEvent{
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		Kind:         domain.CheckOut,
		Source:       source,
	})
}

// Record stores an attendance event. A zero timestamp means now, a zero
// date is the timestamp's day in the gym time zone, and an empty source
// means manual entry.
func (s *AttendanceService) Record(ctx context.Context, event *domain.AttendanceEvent) (*domain.AttendanceEvent, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.Date.IsZero() {
		event.Date = domain.DateOf(event.Timestamp.In(s.location))
	}
	if event.Source == "" {
		event.Source = domain.SourceManual
	}

	if err := event.Validate(); err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	if _, err := s.events.Record(ctx, event); err != nil {
		return nil, err
	}

	s.publisher.PublishEventRecorded(ctx, event)

	s.logger.Info().
		Str("event_id", event.ID).
		Str("employee_id", event.EmployeeID).
		Str("date", event.Date.String()).
		Str("kind", string(event.Kind)).
		Str("source", string(event.Source)).
		Msg("attendance recorded")

	return event, nil
}

// ListByKey lists the events of an employee on a date
func (s *AttendanceService) ListByKey(ctx context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error) {
	return s.events.ListByKey(ctx, employeeID, date)
}

// ListByDate lists all events of a date
func (s *AttendanceService) ListByDate(ctx context.Context, date domain.Date) ([]domain.AttendanceEvent, error) {
	return s.events.ListByDate(ctx, date)
}

package service

import (
	"context"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/events"
	"github.com/gymflow/gymflow-backend/internal/attendance/guard"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/internal/attendance/store"
	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// ScheduleService handles schedule business logic. Every write goes
// through the mutation guard.
type ScheduleService struct {
	guard     *guard.Guard
	schedules store.ScheduleStore
	publisher *events.AttendanceEventPublisher
	logger    *logger.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(
	g *guard.Guard,
	schedules store.ScheduleStore,
	publisher *events.AttendanceEventPublisher,
	log *logger.Logger,
) *ScheduleService {
	return &ScheduleService{
		guard:     g,
		schedules: schedules,
		publisher: publisher,
		logger:    log,
	}
}

// Create creates the schedule of (employee, date), or updates it when one exists
func (s *ScheduleService) Create(ctx context.Context, record *domain.ScheduleRecord) error {
	record.ID = ""
	if record.Status == "" {
		record.Status = domain.ScheduleActive
	}

	if _, err := s.guard.Create(ctx, record); err != nil {
		return err
	}

	s.publisher.PublishScheduleCreated(ctx, record)

	s.logger.Info().
		Str("schedule_id", record.ID).
		Str("employee_id", record.EmployeeID).
		Str("date", record.Date.String()).
		Str("time_range", record.TimeRange()).
		Msg("schedule created")

	return nil
}

// GetByID gets a schedule by ID
func (s *ScheduleService) GetByID(ctx context.Context, id string) (*domain.ScheduleRecord, error) {
	return s.schedules.GetByID(ctx, id)
}

// Get gets the schedule of an employee on a date
func (s *ScheduleService) Get(ctx context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error) {
	record, err := s.schedules.Get(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NotFound("schedule")
	}
	return record, nil
}

// Update replaces the schedule record.ID
func (s *ScheduleService) Update(ctx context.Context, record *domain.ScheduleRecord) error {
	existing, err := s.schedules.GetByID(ctx, record.ID)
	if err != nil {
		return err
	}

	if record.Status == "" {
		record.Status = existing.Status
	}

	if err := s.guard.Update(ctx, record); err != nil {
		return err
	}

	s.publisher.PublishScheduleUpdated(ctx, record, existing.Date)

	s.logger.Info().
		Str("schedule_id", record.ID).
		Str("employee_id", record.EmployeeID).
		Str("date", record.Date.String()).
		Str("previous_date", existing.Date.String()).
		Msg("schedule updated")

	return nil
}

// Delete deletes the schedule id
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	existing, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.guard.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishScheduleDeleted(ctx, existing)

	s.logger.Info().
		Str("schedule_id", id).
		Str("employee_id", existing.EmployeeID).
		Str("date", existing.Date.String()).
		Msg("schedule deleted")

	return nil
}

// CanMutate reports whether the schedule of (employee, date) may still change
func (s *ScheduleService) CanMutate(ctx context.Context, employeeID string, date domain.Date) (bool, error) {
	return s.guard.CanMutate(ctx, employeeID, date)
}

// ListByDate lists the schedules of a date
func (s *ScheduleService) ListByDate(ctx context.Context, date domain.Date) ([]domain.ScheduleRecord, error) {
	return s.schedules.ListByDate(ctx, date)
}

// ListByEmployee pages an employee's schedules, newest first, before the cursor
func (s *ScheduleService) ListByEmployee(ctx context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error) {
	return s.schedules.ListByEmployee(ctx, employeeID, before, limit)
}

// DayStats summarises the active schedules of a date
func (s *ScheduleService) DayStats(ctx context.Context, date domain.Date) (domain.ScheduleDayStats, error) {
	records, err := s.schedules.ListByDate(ctx, date)
	if err != nil {
		return domain.ScheduleDayStats{}, err
	}
	return stats.ScheduleDay(date, records), nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/errors"
)

const eventColumns = `id, employee_id, employee_name, event_date, kind, occurred_at, source, created_at`

// AttendanceRepository handles attendance event persistence. Events are
// append-only.
type AttendanceRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *database.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db, now: time.Now}
}

// Create inserts an attendance event
func (r *AttendanceRepository) Create(ctx context.Context, ev *domain.AttendanceEvent) error {
	if err := ev.Validate(); err != nil {
		return errors.BadRequest(err.Error())
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.CreatedAt = r.now().UTC()

	query := `
		INSERT INTO attendance_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		ev.ID, ev.EmployeeID, ev.EmployeeName, ev.Date, ev.Kind, ev.Timestamp, ev.Source, ev.CreatedAt,
	)
	if err != nil {
		if appErr := database.MapError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to record attendance event: %w", err)
	}

	return nil
}

// ListByKey lists the events of an employee on a date ordered by time
func (r *AttendanceRepository) ListByKey(ctx context.Context, employeeID string, date domain.Date) ([]domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE employee_id = ? AND event_date = ?
		ORDER BY occurred_at, id`

	return r.list(ctx, query, employeeID, date)
}

// ListByDate lists the events of a date ordered by time
func (r *AttendanceRepository) ListByDate(ctx context.Context, date domain.Date) ([]domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE event_date = ?
		ORDER BY occurred_at, id`

	return r.list(ctx, query, date)
}

// ListByEmployee lists an employee's events inside window, oldest first
func (r *AttendanceRepository) ListByEmployee(ctx context.Context, employeeID string, window domain.TimeWindow) ([]domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE employee_id = ? AND event_date >= ? AND event_date <= ?
		ORDER BY occurred_at, id`

	return r.list(ctx, query, employeeID, window.Start, window.End)
}

func (r *AttendanceRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.AttendanceEvent, error) {
	events := []domain.AttendanceEvent{}

	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list attendance events: %w", err)
	}

	for i := range events {
		events[i].Timestamp = events[i].Timestamp.UTC()
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}
	return events, nil
}

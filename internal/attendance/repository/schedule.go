package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/pkg/database"
	"github.com/gymflow/gymflow-backend/pkg/errors"
)

const scheduleColumns = `id, employee_id, employee_name, schedule_date, start_time, end_time,
	status, notes, created_at, updated_at`

// ScheduleRepository handles schedule persistence. Deleted schedules are
// kept with deleted_at set and revived by the next upsert of their key.
type ScheduleRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db, now: time.Now}
}

// GetByKey gets the schedule of an employee on a date
func (r *ScheduleRepository) GetByKey(ctx context.Context, employeeID string, date domain.Date) (*domain.ScheduleRecord, error) {
	return r.getByKey(ctx, r.db, employeeID, date)
}

func (r *ScheduleRepository) getByKey(ctx context.Context, q sqlx.QueryerContext, employeeID string, date domain.Date) (*domain.ScheduleRecord, error) {
	var rec domain.ScheduleRecord

	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE employee_id = ? AND schedule_date = ? AND deleted_at IS NULL`

	err := sqlx.GetContext(ctx, q, &rec, r.db.Rebind(query), employeeID, date)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("schedule")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return normalizeSchedule(&rec), nil
}

// GetByID gets a schedule by ID
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduleRecord, error) {
	var rec domain.ScheduleRecord

	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE id = ? AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("schedule")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return normalizeSchedule(&rec), nil
}

// Upsert creates or updates a schedule and reloads it into rec.
// Without an ID the record is matched by (employee_id, schedule_date).
// With an ID the existing record is updated and may move to another date.
func (r *ScheduleRepository) Upsert(ctx context.Context, rec *domain.ScheduleRecord) error {
	if rec.Status == "" {
		rec.Status = domain.ScheduleActive
	}
	now := r.now().UTC()

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if rec.ID != "" {
			return r.update(ctx, tx, rec, now)
		}
		return r.upsertByKey(ctx, tx, rec, now)
	})
	if err != nil {
		if appErr := database.MapError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

func (r *ScheduleRepository) upsertByKey(ctx context.Context, tx *sqlx.Tx, rec *domain.ScheduleRecord, now time.Time) error {
	query := `
		INSERT INTO schedules (
			id, employee_id, employee_name, schedule_date, start_time, end_time,
			status, notes, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (employee_id, schedule_date) DO UPDATE SET
			employee_name = excluded.employee_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			created_at = CASE WHEN schedules.deleted_at IS NULL THEN schedules.created_at ELSE excluded.created_at END,
			deleted_at = NULL
	`
	_, err := tx.ExecContext(ctx, tx.Rebind(query),
		uuid.New().String(), rec.EmployeeID, rec.EmployeeName, rec.Date, rec.StartTime, rec.EndTime,
		rec.Status, rec.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}

	stored, err := r.getByKey(ctx, tx, rec.EmployeeID, rec.Date)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

func (r *ScheduleRepository) update(ctx context.Context, tx *sqlx.Tx, rec *domain.ScheduleRecord, now time.Time) error {
	// a deleted schedule still holds its key in the unique index
	purge := `DELETE FROM schedules
		WHERE employee_id = ? AND schedule_date = ? AND id <> ? AND deleted_at IS NOT NULL`
	if _, err := tx.ExecContext(ctx, tx.Rebind(purge), rec.EmployeeID, rec.Date, rec.ID); err != nil {
		return fmt.Errorf("failed to purge deleted schedule: %w", err)
	}

	query := `
		UPDATE schedules SET
			employee_id = ?, employee_name = ?, schedule_date = ?, start_time = ?, end_time = ?,
			status = ?, notes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, tx.Rebind(query),
		rec.EmployeeID, rec.EmployeeName, rec.Date, rec.StartTime, rec.EndTime,
		rec.Status, rec.Notes, now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("schedule")
	}

	stored, err := r.getByKey(ctx, tx, rec.EmployeeID, rec.Date)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

// Delete soft deletes a schedule
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	now := r.now().UTC()

	query := `UPDATE schedules SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("schedule")
	}

	return nil
}

// ListByDate lists the schedules of a date ordered by start time
func (r *ScheduleRepository) ListByDate(ctx context.Context, date domain.Date) ([]domain.ScheduleRecord, error) {
	records := []domain.ScheduleRecord{}

	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE schedule_date = ? AND deleted_at IS NULL
		ORDER BY start_time, employee_id`

	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), date); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	for i := range records {
		normalizeSchedule(&records[i])
	}
	return records, nil
}

// ListByEmployee lists an employee's schedules, newest date first.
// A non-zero before only returns earlier dates; a limit of zero or less
// returns every schedule.
func (r *ScheduleRepository) ListByEmployee(ctx context.Context, employeeID string, before domain.Date, limit int) ([]domain.ScheduleRecord, error) {
	records := []domain.ScheduleRecord{}

	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE employee_id = ? AND deleted_at IS NULL`
	args := []interface{}{employeeID}
	if !before.IsZero() {
		query += " AND schedule_date < ?"
		args = append(args, before)
	}
	query += " ORDER BY schedule_date DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list employee schedules: %w", err)
	}

	for i := range records {
		normalizeSchedule(&records[i])
	}
	return records, nil
}

func normalizeSchedule(rec *domain.ScheduleRecord) *domain.ScheduleRecord {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec
}

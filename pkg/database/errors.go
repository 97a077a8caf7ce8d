package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/gymflow/gymflow-backend/pkg/errors"
)

// MapError converts a driver constraint error into an AppError.
// Returns nil when err is not a recognised constraint violation.
func MapError(err error) *errors.AppError {
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return MapSQLiteError(err)
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514":
		return mapCheckConstraint(pqErr.Constraint)
	case "23505":
		return errors.Conflict(uniqueMessage(pqErr.Constraint))
	case "23503":
		return errors.BadRequest("referenced record does not exist").
			WithDetails(map[string]string{"constraint": pqErr.Constraint})
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})
	default:
		return nil
	}
}

// MapSQLiteError converts a go-sqlite3 constraint error to an AppError.
// SQLite reports the constraint in the message rather than a field.
func MapSQLiteError(err error) *errors.AppError {
	var sqliteErr sqlite3.Error
	if !stderrors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return nil
	}

	msg := sqliteErr.Error()
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return errors.Conflict(uniqueMessage(msg))
	case sqlite3.ErrConstraintCheck:
		return mapCheckConstraint(msg)
	case sqlite3.ErrConstraintForeignKey:
		return errors.BadRequest("referenced record does not exist")
	case sqlite3.ErrConstraintNotNull:
		return errors.Validation(map[string]string{
			"required field": "must not be empty",
		})
	default:
		return errors.BadRequest("data validation failed")
	}
}

// mapCheckConstraint maps CHECK constraint names to user-friendly messages.
func mapCheckConstraint(constraint string) *errors.AppError {
	switch {
	case strings.Contains(constraint, "schedules_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: active, inactive, cancelled",
		})
	case strings.Contains(constraint, "attendance_events_kind_valid"):
		return errors.Validation(map[string]string{
			"kind": "must be one of: check-in, check-out",
		})
	case strings.Contains(constraint, "attendance_events_source_valid"):
		return errors.Validation(map[string]string{
			"source": "must be one of: QR, manual",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func uniqueMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "schedules_employee_date"),
		strings.Contains(constraint, "schedules.employee_id, schedules.schedule_date"):
		return "the employee already has a schedule on this date"
	default:
		return "a record with these values already exists"
	}
}

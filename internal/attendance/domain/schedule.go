package domain

import (
	"fmt"
	"time"
)

// ScheduleStatus is the lifecycle state of a planned shift
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "active"
	ScheduleInactive  ScheduleStatus = "inactive"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleActive, ScheduleInactive, ScheduleCancelled:
		return true
	}
	return false
}

// MaxNotesLength bounds ScheduleRecord.Notes
const MaxNotesLength = 500

// Key identifies one employee on one calendar day
type Key struct {
	EmployeeID string
	Date       Date
}

func (k Key) String() string {
	return k.EmployeeID + "@" + k.Date.String()
}

// ScheduleRecord is a planned shift for one employee on one day
type ScheduleRecord struct {
	ID           string         `db:"id" json:"id"`
	EmployeeID   string         `db:"employee_id" json:"employee_id"`
	EmployeeName string         `db:"employee_name" json:"employee_name"`
	Date         Date           `db:"schedule_date" json:"date"`
	StartTime    string         `db:"start_time" json:"start_time"`
	EndTime      string         `db:"end_time" json:"end_time"`
	Status       ScheduleStatus `db:"status" json:"status"`
	Notes        string         `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Key returns the (employee, day) the schedule belongs to
func (r ScheduleRecord) Key() Key {
	return Key{EmployeeID: r.EmployeeID, Date: r.Date}
}

// TimeRange formats the shift as "HH:MM-HH:MM"
func (r ScheduleRecord) TimeRange() string {
	return r.StartTime + "-" + r.EndTime
}

// Duration is the planned length of the shift. An end time at or before the
// start time means the shift runs past midnight.
func (r ScheduleRecord) Duration() (time.Duration, error) {
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", r.StartTime, err)
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", r.EndTime, err)
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(start), nil
}

// Validate checks the invariants of a record before it is stored
func (r ScheduleRecord) Validate() error {
	if r.EmployeeID == "" {
		return fmt.Errorf("employee id is required")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if len([]rune(r.Notes)) > MaxNotesLength {
		return fmt.Errorf("notes exceed %d characters", MaxNotesLength)
	}
	if _, err := r.Duration(); err != nil {
		return err
	}
	return nil
}

// Equal compares two records field by field, instants with time.Equal
func (r ScheduleRecord) Equal(o ScheduleRecord) bool {
	return r.ID == o.ID &&
		r.EmployeeID == o.EmployeeID &&
		r.EmployeeName == o.EmployeeName &&
		r.Date == o.Date &&
		r.StartTime == o.StartTime &&
		r.EndTime == o.EndTime &&
		r.Status == o.Status &&
		r.Notes == o.Notes &&
		r.CreatedAt.Equal(o.CreatedAt) &&
		r.UpdatedAt.Equal(o.UpdatedAt)
}

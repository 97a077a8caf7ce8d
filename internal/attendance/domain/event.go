package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// EventKind is either CheckIn or CheckOut. Parsing at every boundary
// (JSON, SQL) rejects anything else.
type EventKind string

const (
	CheckIn  EventKind = "check-in"
	CheckOut EventKind = "check-out"
)

// ParseEventKind accepts only the two known kinds
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case CheckIn, CheckOut:
		return EventKind(s), nil
	default:
		return "", fmt.Errorf("unknown attendance event kind %q", s)
	}
}

// Valid reports whether k is one of the known kinds
func (k EventKind) Valid() bool {
	return k == CheckIn || k == CheckOut
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *EventKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Scan implements sql.Scanner
func (k *EventKind) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into EventKind", src)
	}
	parsed, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer
func (k EventKind) Value() (driver.Value, error) {
	if _, err := ParseEventKind(string(k)); err != nil {
		return nil, err
	}
	return string(k), nil
}

// EventSource is how the event was captured
type EventSource string

const (
	SourceQR     EventSource = "QR"
	SourceManual EventSource = "manual"
)

// Valid reports whether s is a known source
func (s EventSource) Valid() bool {
	return s == SourceQR || s == SourceManual
}

// AttendanceEvent is an immutable check-in or check-out
type AttendanceEvent struct {
	ID           string      `db:"id" json:"id"`
	EmployeeID   string      `db:"employee_id" json:"employee_id"`
	EmployeeName string      `db:"employee_name" json:"employee_name"`
	Date         Date        `db:"event_date" json:"date"`
	Kind         EventKind   `db:"kind" json:"kind"`
	Timestamp    time.Time   `db:"occurred_at" json:"timestamp"`
	Source       EventSource `db:"source" json:"source"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Key returns the (employee, day) the event belongs to
func (e AttendanceEvent) Key() Key {
	return Key{EmployeeID: e.EmployeeID, Date: e.Date}
}

// Validate checks an event before it is recorded
func (e AttendanceEvent) Validate() error {
	if e.EmployeeID == "" {
		return fmt.Errorf("employee id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if _, err := ParseEventKind(string(e.Kind)); err != nil {
		return err
	}
	if !e.Source.Valid() {
		return fmt.Errorf("invalid source %q", e.Source)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Equal compares two events, instants with time.Equal
func (e AttendanceEvent) Equal(o AttendanceEvent) bool {
	return e.ID == o.ID &&
		e.EmployeeID == o.EmployeeID &&
		e.EmployeeName == o.EmployeeName &&
		e.Date == o.Date &&
		e.Kind == o.Kind &&
		e.Timestamp.Equal(o.Timestamp) &&
		e.Source == o.Source &&
		e.CreatedAt.Equal(o.CreatedAt)
}

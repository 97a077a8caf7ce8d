package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
)

// FixtureFactory creates test schedules and attendance events. Employee
// names are numbered so every fixture is distinguishable.
type FixtureFactory struct {
	mu       sync.Mutex
	sequence int
	Location *time.Location
}

// NewFixtureFactory creates a new fixture factory using UTC
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{Location: time.UTC}
}

func (f *FixtureFactory) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// EmployeeID returns a fresh employee id
func (f *FixtureFactory) EmployeeID() string {
	return fmt.Sprintf("emp-%03d", f.next())
}

// Schedule creates an active 09:00-17:00 schedule that is not yet stored
func (f *FixtureFactory) Schedule(employeeID string, date domain.Date) *domain.ScheduleRecord {
	return &domain.ScheduleRecord{
		EmployeeID:   employeeID,
		EmployeeName: fmt.Sprintf("Trainer %d", f.next()),
		Date:         date,
		StartTime:    "09:00",
		EndTime:      "17:00",
		Status:       domain.ScheduleActive,
	}
}

// Event creates an attendance event at hhmm local time on date
func (f *FixtureFactory) Event(employeeID string, date domain.Date, kind domain.EventKind, hhmm string) *domain.AttendanceEvent {
	at, err := date.At(hhmm, f.Location)
	if err != nil {
		panic(err)
	}

	return &domain.AttendanceEvent{
		ID:         uuid.New().String(),
		EmployeeID: employeeID,
		Date:       date,
		Kind:       kind,
		Timestamp:  at,
		Source:     domain.SourceQR,
	}
}

// CheckIn creates a check-in event
func (f *FixtureFactory) CheckIn(employeeID string, date domain.Date, hhmm string) *domain.AttendanceEvent {
	return f.Event(employeeID, date, domain.CheckIn, hhmm)
}

// CheckOut creates a check-out event
func (f *FixtureFactory) CheckOut(employeeID string, date domain.Date, hhmm string) *domain.AttendanceEvent {
	return f.Event(employeeID, date, domain.CheckOut, hhmm)
}

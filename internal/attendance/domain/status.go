package domain

import (
	"sort"
	"time"
)

// Phase is the progress of an employee's working day
type Phase string

const (
	PhaseNotStarted Phase = "not-started"
	PhaseInProgress Phase = "in-progress"
	PhaseCompleted  Phase = "completed"
)

// Anomaly flags data that is representable but suspicious
type Anomaly string

const (
	AnomalyNone Anomaly = ""
	// AnomalyAnomalousDuration marks a check-out at or before the check-in
	AnomalyAnomalousDuration Anomaly = "anomalous-duration"
)

// DailyAttendanceStatus is the reconciled state of one employee on one day.
// Values are snapshots; the pointers are never mutated after derivation.
type DailyAttendanceStatus struct {
	EmployeeID    string           `json:"employee_id"`
	Date          Date             `json:"date"`
	Schedule      *ScheduleRecord  `json:"schedule,omitempty"`
	CheckIn       *AttendanceEvent `json:"checkin,omitempty"`
	CheckOut      *AttendanceEvent `json:"checkout,omitempty"`
	Phase         Phase            `json:"phase"`
	WorkedMinutes int              `json:"worked_minutes"`
	Anomaly       Anomaly          `json:"anomaly,omitempty"`
}

// NotStarted is the status of a key with no records at all
func NotStarted(key Key) DailyAttendanceStatus {
	return DailyAttendanceStatus{EmployeeID: key.EmployeeID, Date: key.Date, Phase: PhaseNotStarted}
}

// Key returns the (employee, day) of the status
func (s DailyAttendanceStatus) Key() Key {
	return Key{EmployeeID: s.EmployeeID, Date: s.Date}
}

// IsDefault reports whether the status carries no schedule and no events
func (s DailyAttendanceStatus) IsDefault() bool {
	return s.Schedule == nil && s.CheckIn == nil && s.CheckOut == nil
}

// HasCheckIn reports whether the day has a check-in
func (s DailyAttendanceStatus) HasCheckIn() bool {
	return s.CheckIn != nil
}

// Equal compares statuses by value, following pointers
func (s DailyAttendanceStatus) Equal(o DailyAttendanceStatus) bool {
	if s.EmployeeID != o.EmployeeID || s.Date != o.Date || s.Phase != o.Phase ||
		s.WorkedMinutes != o.WorkedMinutes || s.Anomaly != o.Anomaly {
		return false
	}
	if (s.Schedule == nil) != (o.Schedule == nil) || (s.Schedule != nil && !s.Schedule.Equal(*o.Schedule)) {
		return false
	}
	if (s.CheckIn == nil) != (o.CheckIn == nil) || (s.CheckIn != nil && !s.CheckIn.Equal(*o.CheckIn)) {
		return false
	}
	if (s.CheckOut == nil) != (o.CheckOut == nil) || (s.CheckOut != nil && !s.CheckOut.Equal(*o.CheckOut)) {
		return false
	}
	return true
}

// Derive computes the status of key from its schedule (may be nil) and all
// of its attendance events. The earliest check-in and the latest check-out
// win; equal timestamps fall back to the lowest id. Events of an unknown
// kind are ignored.
func Derive(key Key, schedule *ScheduleRecord, events []AttendanceEvent) DailyAttendanceStatus {
	status := NotStarted(key)

	if schedule != nil {
		sc := *schedule
		status.Schedule = &sc
	}

	var in, out *AttendanceEvent
	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case CheckIn:
			if in == nil || ev.Timestamp.Before(in.Timestamp) ||
				(ev.Timestamp.Equal(in.Timestamp) && ev.ID < in.ID) {
				e := ev
				in = &e
			}
		case CheckOut:
			if out == nil || ev.Timestamp.After(out.Timestamp) ||
				(ev.Timestamp.Equal(out.Timestamp) && ev.ID < out.ID) {
				e := ev
				out = &e
			}
		}
	}

	status.CheckIn = in
	status.CheckOut = out

	switch {
	case in == nil:
		status.Phase = PhaseNotStarted
	case out == nil:
		status.Phase = PhaseInProgress
	default:
		status.Phase = PhaseCompleted
		if out.Timestamp.After(in.Timestamp) {
			status.WorkedMinutes = int(out.Timestamp.Sub(in.Timestamp) / time.Minute)
		} else {
			status.Anomaly = AnomalyAnomalousDuration
		}
	}

	return status
}

// SortStatuses orders statuses by date descending, then employee id
func SortStatuses(statuses []DailyAttendanceStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		if c := statuses[i].Date.Compare(statuses[j].Date); c != 0 {
			return c > 0
		}
		return statuses[i].EmployeeID < statuses[j].EmployeeID
	})
}

package domain

import (
	"fmt"
	"time"
)

// DefaultMaxWindowDays bounds the windows callers may request
const DefaultMaxWindowDays = 366

// TimeWindow is an inclusive range of calendar days
type TimeWindow struct {
	Start Date `json:"start_date"`
	End   Date `json:"end_date"`
}

// NewTimeWindow validates that end is not before start
func NewTimeWindow(start, end Date) (TimeWindow, error) {
	if end.Before(start) {
		return TimeWindow{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// SingleDay is the window covering only d
func SingleDay(d Date) TimeWindow {
	return TimeWindow{Start: d, End: d}
}

// WeekOf is the Monday to Sunday week containing d
func WeekOf(d Date) TimeWindow {
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDays(-offset)
	return TimeWindow{Start: start, End: start.AddDays(6)}
}

// MonthOf is the calendar month containing d
func MonthOf(d Date) TimeWindow {
	start := NewDate(d.Year, d.Month, 1)
	end := NewDate(d.Year, d.Month+1, 1).AddDays(-1)
	return TimeWindow{Start: start, End: end}
}

// WindowOf resolves a window kind ("day", "week", "month") around d
func WindowOf(kind string, d Date) (TimeWindow, error) {
	switch kind {
	case "day":
		return SingleDay(d), nil
	case "week":
		return WeekOf(d), nil
	case "month":
		return MonthOf(d), nil
	default:
		return TimeWindow{}, fmt.Errorf("unknown window kind %q", kind)
	}
}

// Days is the number of days in the window
func (w TimeWindow) Days() int {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.Start.DaysUntil(w.End) + 1
}

// Contains reports whether d falls inside the window
func (w TimeWindow) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Dates lists every day of the window in ascending order
func (w TimeWindow) Dates() []Date {
	n := w.Days()
	out := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, w.Start.AddDays(i))
	}
	return out
}

// Shift moves the window by n of its own lengths; months move by calendar month
func (w TimeWindow) Shift(n int) TimeWindow {
	if w == MonthOf(w.Start) {
		first := w.Start.In(time.UTC).AddDate(0, n, 0)
		return MonthOf(DateOf(first))
	}
	days := w.Days() * n
	return TimeWindow{Start: w.Start.AddDays(days), End: w.End.AddDays(days)}
}

func (w TimeWindow) String() string {
	return w.Start.String() + ".." + w.End.String()
}

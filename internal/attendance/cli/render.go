package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
)

const rowFormat = "%-12s %-13s %-9s %-10s %-12s %-8s %s\n"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clock(ev *domain.AttendanceEvent, loc *time.Location) string {
	if ev == nil {
		return "-"
	}
	return ev.Timestamp.In(loc).Format("15:04")
}

func worked(st domain.DailyAttendanceStatus) string {
	if st.Phase != domain.PhaseCompleted || st.Anomaly != domain.AnomalyNone {
		return "-"
	}
	return stats.FormatMinutes(st.WorkedMinutes)
}

func writeStatusRows(w io.Writer, first string, statuses []domain.DailyAttendanceStatus, loc *time.Location, label func(domain.DailyAttendanceStatus) string) {
	fmt.Fprintf(w, rowFormat, first, "SCHEDULE", "IN", "OUT", "PHASE", "WORKED", "ANOMALY")
	for _, st := range statuses {
		schedule := "-"
		if st.Schedule != nil {
			schedule = st.Schedule.TimeRange()
		}
		fmt.Fprintf(w, rowFormat,
			label(st),
			schedule,
			clock(st.CheckIn, loc),
			clock(st.CheckOut, loc),
			string(st.Phase),
			worked(st),
			cell(string(st.Anomaly)),
		)
	}
}

// renderStatuses prints the statuses of one window, one row per employee and day
func renderStatuses(w io.Writer, window domain.TimeWindow, statuses []domain.DailyAttendanceStatus, loc *time.Location) {
	if window.Days() == 1 {
		fmt.Fprintf(w, "Attendance on %s\n\n", window.Start)
	} else {
		fmt.Fprintf(w, "Attendance %s\n\n", window)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(w, "No schedules or attendance recorded.")
		return
	}

	if window.Days() == 1 {
		writeStatusRows(w, "EMPLOYEE", statuses, loc, func(st domain.DailyAttendanceStatus) string { return st.EmployeeID })
		return
	}
	writeStatusRows(w, "DATE", statuses, loc, func(st domain.DailyAttendanceStatus) string {
		return st.Date.String() + " " + st.EmployeeID
	})
}

// renderSummary prints a summary followed by its per day breakdown
func renderSummary(w io.Writer, s domain.StatisticsSummary, loc *time.Location) {
	line := func(label string, value interface{}) {
		fmt.Fprintf(w, "%-28s%v\n", label+":", value)
	}

	line("Employee", s.EmployeeID)
	line("Window", s.Window)
	line("Total days", s.TotalDays)
	line("Days with check-in", s.DaysWithCheckin)
	line("Days with check-out", s.DaysWithCheckout)
	line("Days completed", s.DaysCompleted)
	line("Anomalous days", s.AnomalousDays)
	line("Total worked", fmt.Sprintf("%s (%sh)", stats.FormatTotal(s), stats.TotalHours(s).StringFixed(1)))
	line("Average per completed day", fmt.Sprintf("%s (%sh)", stats.FormatAverage(s), stats.AvgHoursPerDay(s).StringFixed(1)))
	line("Completion rate", fmt.Sprintf("%d%%", s.CompletionRate))

	if len(s.PerDayBreakdown) == 0 {
		return
	}
	fmt.Fprintln(w)
	writeStatusRows(w, "DATE", s.PerDayBreakdown, loc, func(st domain.DailyAttendanceStatus) string {
		return st.Date.String()
	})
}

// renderSchedules prints the schedules of one date and their day stats
func renderSchedules(w io.Writer, date domain.Date, records []domain.ScheduleRecord, s domain.ScheduleDayStats) {
	fmt.Fprintf(w, "Schedules on %s\n\n", date)

	if len(records) == 0 {
		fmt.Fprintln(w, "No schedules.")
		return
	}

	const format = "%-12s %-20s %-13s %s\n"
	fmt.Fprintf(w, format, "EMPLOYEE", "NAME", "TIME", "STATUS")
	for _, rec := range records {
		fmt.Fprintf(w, format, rec.EmployeeID, cell(rec.EmployeeName), rec.TimeRange(), string(rec.Status))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-28s%d\n", "Active schedules:", s.TotalSchedules)
	fmt.Fprintf(w, "%-28s%.1f\n", "Scheduled hours:", s.TotalHours)
	for _, r := range stats.TimeRanges(s) {
		fmt.Fprintf(w, "  %-26s%d\n", r, s.SchedulesByTime[r])
	}
}

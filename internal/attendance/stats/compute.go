package stats

import (
	"math"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
)

// Compute builds the summary of employeeID over window from scratch. Statuses
// of other employees, dates outside the window and default statuses are
// ignored; a date listed twice counts once, last one wins.
func Compute(employeeID string, window domain.TimeWindow, statuses []domain.DailyAttendanceStatus) domain.StatisticsSummary {
	byDate := make(map[domain.Date]domain.DailyAttendanceStatus)
	for _, st := range statuses {
		if st.EmployeeID != employeeID || !window.Contains(st.Date) {
			continue
		}
		if st.IsDefault() {
			delete(byDate, st.Date)
			continue
		}
		byDate[st.Date] = st
	}

	var c counters
	breakdown := make([]domain.DailyAttendanceStatus, 0, len(byDate))
	for _, st := range byDate {
		breakdown = append(breakdown, st)

		if st.HasCheckIn() {
			c.withCheckin++
		}
		if st.CheckOut != nil {
			c.withCheckout++
		}
		if st.Phase != domain.PhaseCompleted {
			continue
		}
		c.completed++
		if st.Anomaly == domain.AnomalyAnomalousDuration {
			c.anomalous++
			continue
		}
		c.workedMinutes += st.WorkedMinutes
	}
	domain.SortStatuses(breakdown)

	return build(employeeID, window, c, breakdown)
}

// CompletionRate is round(100 * completed / total), 0 for an empty window
func CompletionRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

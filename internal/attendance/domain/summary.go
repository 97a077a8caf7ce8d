package domain

// StatisticsSummary aggregates one employee's statuses over a window
type StatisticsSummary struct {
	EmployeeID                string                  `json:"employee_id"`
	Window                    TimeWindow              `json:"window"`
	TotalDays                 int                     `json:"total_days"`
	TotalWorkedMinutes        int                     `json:"total_worked_minutes"`
	DaysWithCheckin           int                     `json:"days_with_checkin"`
	DaysWithCheckout          int                     `json:"days_with_checkout"`
	DaysCompleted             int                     `json:"days_completed"`
	AnomalousDays             int                     `json:"anomalous_days"`
	AvgMinutesPerCompletedDay float64                 `json:"avg_minutes_per_completed_day"`
	CompletionRate            int                     `json:"completion_rate"`
	PerDayBreakdown           []DailyAttendanceStatus `json:"per_day_breakdown"`
}

// ScheduleDayStats summarises the schedules of one date
type ScheduleDayStats struct {
	Date            Date           `json:"date"`
	TotalSchedules  int            `json:"total_schedules"`
	SchedulesByTime map[string]int `json:"schedules_by_time"`
	TotalHours      float64        `json:"total_hours"`
}

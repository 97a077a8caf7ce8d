package stats

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
)

var sixty = decimal.NewFromInt(60)

// Hours converts minutes to hours rounded to one decimal place
func Hours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(sixty).Round(1)
}

// TotalHours is the worked time of a summary in hours
func TotalHours(s domain.StatisticsSummary) decimal.Decimal {
	return Hours(s.TotalWorkedMinutes)
}

// AvgHoursPerDay is the average worked time of a completed day in hours
func AvgHoursPerDay(s domain.StatisticsSummary) decimal.Decimal {
	return decimal.NewFromFloat(s.AvgMinutesPerCompletedDay).Div(sixty).Round(1)
}

// FormatMinutes renders a duration as "8h 5m"
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// FormatTotal renders the worked time of a summary
func FormatTotal(s domain.StatisticsSummary) string {
	return FormatMinutes(s.TotalWorkedMinutes)
}

// FormatAverage renders the average worked time of a completed day
func FormatAverage(s domain.StatisticsSummary) string {
	return FormatMinutes(int(s.AvgMinutesPerCompletedDay))
}

// ScheduleDay summarises the active schedules of one date. Records of other
// dates are ignored.
func ScheduleDay(date domain.Date, records []domain.ScheduleRecord) domain.ScheduleDayStats {
	out := domain.ScheduleDayStats{
		Date:            date,
		SchedulesByTime: make(map[string]int),
	}

	total := decimal.Zero
	for _, rec := range records {
		if rec.Date != date || rec.Status != domain.ScheduleActive {
			continue
		}
		out.TotalSchedules++
		out.SchedulesByTime[rec.TimeRange()]++

		if d, err := rec.Duration(); err == nil {
			total = total.Add(decimal.NewFromInt(int64(d.Minutes())))
		}
	}

	out.TotalHours = total.Div(sixty).Round(1).InexactFloat64()
	return out
}

// TimeRanges returns the keys of SchedulesByTime in start time order
func TimeRanges(s domain.ScheduleDayStats) []string {
	ranges := make([]string, 0, len(s.SchedulesByTime))
	for r := range s.SchedulesByTime {
		ranges = append(ranges, r)
	}
	sort.Strings(ranges)
	return ranges
}

// Package export renders attendance statistics as XLSX workbooks
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
)

// Sheet names
const (
	SummarySheet = "Summary"
	DaysSheet    = "Days"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var dayHeaders = []interface{}{
	"Date", "Phase", "Schedule", "Check-in", "Check-out", "Worked", "Worked (h)", "Anomaly",
}

// Filename is the suggested download name for a summary
func Filename(s domain.StatisticsSummary) string {
	return fmt.Sprintf("attendance_%s_%s_%s.xlsx", s.EmployeeID, s.Window.Start, s.Window.End)
}

// Workbook builds a workbook with a summary sheet and one row per day of the
// breakdown. Check-in and check-out times are shown in loc.
func Workbook(s domain.StatisticsSummary, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSummary(f, s); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(DaysSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create days sheet: %w", err)
	}
	if err := writeDays(f, s, loc); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// Write renders the workbook of s to w
func Write(w io.Writer, s domain.StatisticsSummary, loc *time.Location) error {
	f, err := Workbook(s, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s domain.StatisticsSummary) error {
	rows := [][]interface{}{
		{"Employee", s.EmployeeID},
		{"From", s.Window.Start.String()},
		{"To", s.Window.End.String()},
		{"Total days", s.TotalDays},
		{"Days with check-in", s.DaysWithCheckin},
		{"Days with check-out", s.DaysWithCheckout},
		{"Days completed", s.DaysCompleted},
		{"Anomalous days", s.AnomalousDays},
		{"Total worked", stats.FormatTotal(s)},
		{"Total hours", stats.TotalHours(s).InexactFloat64()},
		{"Average per completed day", stats.FormatAverage(s)},
		{"Completion rate (%)", s.CompletionRate},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 28)
}

func writeDays(f *excelize.File, s domain.StatisticsSummary, loc *time.Location) error {
	if err := f.SetSheetRow(DaysSheet, "A1", &dayHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(DaysSheet, "A1", "H1", header); err != nil {
		return err
	}

	for i, st := range s.PerDayBreakdown {
		row := []interface{}{
			st.Date.String(),
			string(st.Phase),
			scheduleCell(st.Schedule),
			eventCell(st.CheckIn, loc),
			eventCell(st.CheckOut, loc),
			stats.FormatMinutes(st.WorkedMinutes),
			stats.Hours(st.WorkedMinutes).InexactFloat64(),
			string(st.Anomaly),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DaysSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write day %s: %w", st.Date, err)
		}
	}

	if err := f.SetColWidth(DaysSheet, "A", "A", 12); err != nil {
		return err
	}
	return f.SetColWidth(DaysSheet, "B", "H", 14)
}

func scheduleCell(rec *domain.ScheduleRecord) string {
	if rec == nil {
		return ""
	}
	return rec.TimeRange()
}

func eventCell(ev *domain.AttendanceEvent, loc *time.Location) string {
	if ev == nil {
		return ""
	}
	return ev.Timestamp.In(loc).Format("15:04")
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gymflow/gymflow-backend/internal/attendance/domain"
	"github.com/gymflow/gymflow-backend/internal/attendance/export"
	"github.com/gymflow/gymflow-backend/internal/attendance/stats"
	"github.com/gymflow/gymflow-backend/pkg/database"
)

// windowFlags selects a window: --from/--to, or --window around --date
type windowFlags struct {
	date   string
	window string
	from   string
	to     string
}

func (f *windowFlags) register(cmd *cobra.Command, windowHelp string) {
	cmd.Flags().StringVar(&f.date, "date", "", "anchor date YYYY-MM-DD (default today in the gym time zone)")
	cmd.Flags().StringVar(&f.window, "window", "", windowHelp)
	cmd.Flags().StringVar(&f.from, "from", "", "first date of an explicit range")
	cmd.Flags().StringVar(&f.to, "to", "", "last date of an explicit range")
}

func (f *windowFlags) resolve(b *Backend, defaultKind string) (domain.TimeWindow, error) {
	if f.from != "" || f.to != "" {
		start, err := domain.ParseDate(f.from)
		if err != nil {
			return domain.TimeWindow{}, fmt.Errorf("--from: %w", err)
		}
		end, err := domain.ParseDate(f.to)
		if err != nil {
			return domain.TimeWindow{}, fmt.Errorf("--to: %w", err)
		}
		w, err := domain.NewTimeWindow(start, end)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		if b.MaxWindowDays > 0 && w.Days() > b.MaxWindowDays {
			return domain.TimeWindow{}, fmt.Errorf("window %s spans %d days, the limit is %d", w, w.Days(), b.MaxWindowDays)
		}
		return w, nil
	}

	anchor := domain.Today(b.Location)
	if f.date != "" {
		d, err := domain.ParseDate(f.date)
		if err != nil {
			return domain.TimeWindow{}, fmt.Errorf("--date: %w", err)
		}
		anchor = d
	}

	kind := f.window
	if kind == "" {
		kind = defaultKind
	}
	return domain.WindowOf(kind, anchor)
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the attendance schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			if b.DB == nil {
				return errors.New("migrate needs a database backend")
			}
			if err := b.DB.Migrate(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements on %s\n", len(database.Statements()), b.DB.Driver())
			return nil
		},
	}
}

// NewStatusCommand creates the status command
func NewStatusCommand(opts *RootOptions, open Opener) *cobra.Command {
	var (
		wf         windowFlags
		employeeID string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show reconciled daily statuses",
		Long: `Show the reconciled status of every employee with a schedule or an
attendance event in the window. The window is a single day by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			window, err := wf.resolve(b, "day")
			if err != nil {
				return err
			}

			statuses, err := b.Engine.Statuses(window)
			if err != nil {
				return err
			}

			if employeeID != "" {
				filtered := statuses[:0]
				for _, st := range statuses {
					if st.EmployeeID == employeeID {
						filtered = append(filtered, st)
					}
				}
				statuses = filtered
			}

			if opts.Format == "json" {
				if statuses == nil {
					statuses = []domain.DailyAttendanceStatus{}
				}
				return writeJSON(cmd.OutOrStdout(), statuses)
			}
			renderStatuses(cmd.OutOrStdout(), window, statuses, b.Location)
			return nil
		},
	}

	wf.register(cmd, "day, week or month (default day)")
	cmd.Flags().StringVar(&employeeID, "employee", "", "only show this employee")
	return cmd
}

func summarize(b *Backend, wf *windowFlags, employeeID string) (domain.StatisticsSummary, error) {
	if employeeID == "" {
		return domain.StatisticsSummary{}, errors.New("--employee is required")
	}

	window, err := wf.resolve(b, b.DefaultWindow)
	if err != nil {
		return domain.StatisticsSummary{}, err
	}

	statuses, err := b.Engine.Statuses(window)
	if err != nil {
		return domain.StatisticsSummary{}, err
	}
	return stats.Compute(employeeID, window, statuses), nil
}

// NewStatsCommand creates the stats command
func NewStatsCommand(opts *RootOptions, open Opener) *cobra.Command {
	var (
		wf         windowFlags
		employeeID string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise an employee's attendance over a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			s, err := summarize(b, &wf, employeeID)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			renderSummary(cmd.OutOrStdout(), s, b.Location)
			return nil
		},
	}

	wf.register(cmd, "day, week or month (default from config)")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	return cmd
}

// NewExportCommand creates the export command
func NewExportCommand(opts *RootOptions, open Opener) *cobra.Command {
	var (
		wf         windowFlags
		employeeID string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an employee's statistics to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			s, err := summarize(b, &wf, employeeID)
			if err != nil {
				return err
			}

			if output == "" {
				output = export.Filename(s)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := export.Write(f, s, b.Location); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}

	wf.register(cmd, "day, week or month (default from config)")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default attendance_<employee>_<from>_<to>.xlsx)")
	return cmd
}

// NewSchedulesCommand creates the schedules command
func NewSchedulesCommand(opts *RootOptions, open Opener) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List the schedules of one date with per shift counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			day := domain.Today(b.Location)
			if date != "" {
				if day, err = domain.ParseDate(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}

			records, err := b.Schedules.ListByDate(cmd.Context(), day)
			if err != nil {
				return err
			}
			dayStats := stats.ScheduleDay(day, records)

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"schedules": records,
					"stats":     dayStats,
				})
			}
			renderSchedules(cmd.OutOrStdout(), day, records, dayStats)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today in the gym time zone)")
	return cmd
}

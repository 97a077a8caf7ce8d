// Package cli implements attendancectl, the operator command line for the
// attendance service.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
	// DB is a SQLite file that replaces the configured database
	DB string
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. open builds the backend each
// command runs against.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "attendancectl",
		Short: "Inspect and maintain GymFlow attendance data",
		Long: `attendancectl reconciles planned schedules with recorded check-ins and
check-outs, prints daily statuses and statistics, and exports them to XLSX.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database file, overrides the configured database")

	cmd.AddCommand(NewMigrateCommand(opts, open))
	cmd.AddCommand(NewStatusCommand(opts, open))
	cmd.AddCommand(NewStatsCommand(opts, open))
	cmd.AddCommand(NewExportCommand(opts, open))
	cmd.AddCommand(NewSchedulesCommand(opts, open))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

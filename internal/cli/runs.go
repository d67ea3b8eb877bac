package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mascril/internal/catalog"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List catalogued runs",
		Long: `List runs recorded in the run catalogue, newest first.

Example:
  mascril runs --db runs.db
  mascril runs --db runs.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := catalog.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open run catalogue", err)
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list runs", err)
			}
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(runs, func(w io.Writer) error {
				return writeRuns(w, runs)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "run catalogue database (required)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func writeRuns(w io.Writer, runs []catalog.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSCRIPT\tSTATE\tSTEPS\tROWS\tDATA")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			r.Started.Local().Format(time.DateTime), r.Script, r.State, r.Steps, r.Total, r.Rows, r.DataPath)
	}
	return tw.Flush()
}

package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mascril/internal/measure/recorder"
	"github.com/banshee-data/mascril/internal/report"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <data-file>",
		Short: "Summarise the columns of a data file",
		Long: `Print count, min, max, mean and standard deviation for every column of a
recorded data file.

Example:
  mascril summary 2026-03-01_09h30m00s_sampleA.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := recorder.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read data file", err)
			}
			summaries := report.Summarize(table)
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(summaries, func(w io.Writer) error {
				return report.WriteSummary(w, summaries)
			})
		},
	}
}

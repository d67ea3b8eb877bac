package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mascril/internal/measure/recorder"
	"github.com/banshee-data/mascril/internal/report"
)

// PlotCommandOptions holds flags for the plot command.
type PlotCommandOptions struct {
	*RootOptions
	X      string
	Y      []string
	Output string
	Title  string
	Width  float64
	Height float64
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotCommandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plot <data-file>",
		Short: "Plot columns of a data file",
		Long: `Plot one or more columns of a data file against another. The image
format follows the output extension (.png, .svg or .pdf).

Example:
  mascril plot run.txt --x Vg1 --y Rs -o rs.png
  mascril plot run.txt --x Vg1 --y Ileak1 --y Ileak2 -o leak.svg`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := recorder.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read data file", err)
			}
			output := opts.Output
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".png"
			}
			title := opts.Title
			if title == "" {
				title = filepath.Base(args[0])
			}
			err = report.Plot(table, opts.X, opts.Y, output, report.PlotOptions{
				Title:  title,
				Width:  vg.Length(opts.Width) * vg.Inch,
				Height: vg.Length(opts.Height) * vg.Inch,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to plot", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.X, "x", "", "column for the x axis (required)")
	cmd.Flags().StringArrayVar(&opts.Y, "y", nil, "column for the y axis (repeatable, required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output image (default <data-file>.png)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "figure title (default the data file name)")
	cmd.Flags().Float64Var(&opts.Width, "width", 8, "figure width in inches")
	cmd.Flags().Float64Var(&opts.Height, "height", 5, "figure height in inches")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")

	return cmd
}

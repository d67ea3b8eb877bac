package report

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mascril/internal/measure/recorder"
)

// PlotOptions controls the rendered figure.
type PlotOptions struct {
	Title  string
	Width  vg.Length
	Height vg.Length
}

// Plot draws each column in ys against column x and saves the figure to
// path; the format follows the extension (.png, .svg, .pdf). Rows where
// either value is missing are skipped. Round-trip sweeps draw both
// directions as one connected line.
func Plot(t *recorder.Table, x string, ys []string, path string, opts PlotOptions) error {
	if len(ys) == 0 {
		return errors.New("no y columns to plot")
	}
	xs, err := t.Column(x)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = x
	if len(ys) == 1 {
		p.Y.Label.Text = ys[0]
	}
	p.Add(plotter.NewGrid())

	for i, y := range ys {
		col, err := t.Column(y)
		if err != nil {
			return err
		}
		pts := make(plotter.XYs, 0, len(col))
		for j := range col {
			if math.IsNaN(xs[j]) || math.IsNaN(col[j]) {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[j], Y: col[j]})
		}
		if len(pts) == 0 {
			return fmt.Errorf("column %q has no values to plot", y)
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("column %q: %w", y, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(y, line, points)
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 8 * vg.Inch
	}
	if height <= 0 {
		height = 5 * vg.Inch
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// Package report turns recorded data files into column summaries and
// plots.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mascril/internal/measure/recorder"
)

// ColumnSummary describes the finite values of one column.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
}

// Summarize returns one summary per column, in column order. Missing
// (NaN) cells are counted but excluded from the statistics; a column with
// no finite values has NaN statistics.
func Summarize(t *recorder.Table) []ColumnSummary {
	out := make([]ColumnSummary, len(t.Columns))
	for i, name := range t.Columns {
		values := make([]float64, 0, len(t.Rows))
		missing := 0
		for _, row := range t.Rows {
			v := row[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				missing++
				continue
			}
			values = append(values, v)
		}
		s := ColumnSummary{Name: name, Count: len(values), Missing: missing}
		switch len(values) {
		case 0:
			s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		case 1:
			s.Min, s.Max, s.Mean = values[0], values[0], values[0]
		default:
			s.Min, s.Max = floats.Min(values), floats.Max(values)
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
		}
		out[i] = s
	}
	return out
}

// MarshalJSON writes NaN statistics as null.
func (s ColumnSummary) MarshalJSON() ([]byte, error) {
	finite := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Name    string   `json:"name"`
		Count   int      `json:"count"`
		Missing int      `json:"missing"`
		Min     *float64 `json:"min"`
		Max     *float64 `json:"max"`
		Mean    *float64 `json:"mean"`
		StdDev  *float64 `json:"stddev"`
	}{s.Name, s.Count, s.Missing, finite(s.Min), finite(s.Max), finite(s.Mean), finite(s.StdDev)})
}

// WriteSummary writes summaries as an aligned text table.
func WriteSummary(w io.Writer, summaries []ColumnSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tN\tMISSING\tMIN\tMAX\tMEAN\tSTDDEV")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n", s.Name, s.Count, s.Missing,
			num(s.Min), num(s.Max), num(s.Mean), num(s.StdDev))
	}
	return tw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

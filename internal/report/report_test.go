package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mascril/internal/measure/recorder"
	"github.com/banshee-data/mascril/internal/testutil"
)

func sampleTable(t *testing.T) *recorder.Table {
	t.Helper()
	path := testutil.WriteDataFile(t, t.TempDir(), "run.txt",
		[]string{"Vg1", "Rs", "Ileak1"},
		[][]float64{
			{-1, 1200, 1e-10},
			{0, 1100, math.NaN()},
			{1, 1000, 3e-10},
			{2, 900, 2e-10},
		})
	table, err := recorder.ReadFile(path)
	require.NoError(t, err)
	return table
}

func TestSummarize(t *testing.T) {
	got := Summarize(sampleTable(t))
	require.Len(t, got, 3)

	vg := got[0]
	assert.Equal(t, "Vg1", vg.Name)
	assert.Equal(t, 4, vg.Count)
	assert.Equal(t, -1.0, vg.Min)
	assert.Equal(t, 2.0, vg.Max)
	assert.InDelta(t, 0.5, vg.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), vg.StdDev, 1e-12)

	leak := got[2]
	assert.Equal(t, 3, leak.Count)
	assert.Equal(t, 1, leak.Missing)
	assert.InDelta(t, 2e-10, leak.Mean, 1e-22)
}

func TestSummarize_DegenerateColumns(t *testing.T) {
	table := &recorder.Table{
		Columns: []string{"one", "none"},
		Rows:    [][]float64{{3, math.NaN()}},
	}
	got := Summarize(table)
	assert.Equal(t, ColumnSummary{Name: "one", Count: 1, Min: 3, Max: 3, Mean: 3}, got[0])
	assert.Equal(t, 0, got[1].Count)
	assert.True(t, math.IsNaN(got[1].Mean))
}

func TestColumnSummary_JSONNullsMissingStats(t *testing.T) {
	got := Summarize(&recorder.Table{
		Columns: []string{"none"},
		Rows:    [][]float64{{math.NaN()}},
	})
	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"none","count":0,"missing":1,"min":null,"max":null,"mean":null,"stddev":null}`, string(data))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, Summarize(sampleTable(t))))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "COLUMN"))
	assert.True(t, strings.HasPrefix(lines[2], "Rs "))
	assert.Contains(t, lines[2], "1050")
}

func TestPlot_PNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rs.png")
	err := Plot(sampleTable(t), "Vg1", []string{"Rs"}, out, PlotOptions{Title: "chip A"})
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "PNG signature")
}

func TestPlot_SkipsMissingValues(t *testing.T) {
	out := filepath.Join(t.TempDir(), "leak.svg")
	require.NoError(t, Plot(sampleTable(t), "Vg1", []string{"Ileak1", "Rs"}, out, PlotOptions{}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestPlot_Errors(t *testing.T) {
	table := sampleTable(t)
	dir := t.TempDir()
	assert.Error(t, Plot(table, "Vg1", nil, filepath.Join(dir, "a.png"), PlotOptions{}))
	assert.Error(t, Plot(table, "Vg9", []string{"Rs"}, filepath.Join(dir, "b.png"), PlotOptions{}))
	assert.Error(t, Plot(table, "Vg1", []string{"Rs9"}, filepath.Join(dir, "c.png"), PlotOptions{}))

	empty := &recorder.Table{Columns: []string{"x", "y"}, Rows: [][]float64{{1, math.NaN()}}}
	assert.Error(t, Plot(empty, "x", []string{"y"}, filepath.Join(dir, "d.png"), PlotOptions{}))
	assert.Error(t, Plot(table, "Vg1", []string{"Rs"}, filepath.Join(dir, "e.bmp"), PlotOptions{}))
}

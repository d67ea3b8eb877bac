package scripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/measure/alarm"
	"github.com/banshee-data/mascril/internal/measure/recorder"
	"github.com/banshee-data/mascril/internal/monitoring"
	"github.com/banshee-data/mascril/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"dc2gates", "vna1gate"}, Names())
	s, err := Lookup("dc2gates")
	require.NoError(t, err)
	assert.Equal(t, "dc2gates", s.Name())

	_, err = Lookup("lockin2gates")
	assert.ErrorContains(t, err, "dc2gates")

	assert.Panics(t, func() { Register(DC2Gates()) })
}

func TestScripts_DeclareValidSchemas(t *testing.T) {
	for _, name := range Names() {
		s, err := Lookup(name)
		require.NoError(t, err)
		_, err = s.Schema().Bind(nil)
		assert.NoError(t, err, "%s defaults bind", name)
		_, err = alarm.NewEngine(s.Alarms()...)
		assert.NoError(t, err, "%s alarms compile", name)
		_, ok := s.(Simulated)
		assert.True(t, ok, "%s can be simulated", name)
	}
}

func run(t *testing.T, s measure.Script, p instrument.Provider, overrides map[string]any, opts ...measure.Option) (*measure.Result, *recorder.Table, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.txt")
	opts = append([]measure.Option{
		measure.WithProvider(p),
		measure.WithClock(timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))),
		measure.WithNotifier(nil),
		measure.WithRecorderOptions(recorder.WithoutSync()),
	}, opts...)
	res, err := measure.NewRunner(s, &measure.CancelFlag{}, opts...).Run(context.Background(), overrides, path)
	require.NoError(t, err)
	table, err := recorder.ReadFile(path)
	require.NoError(t, err)
	return res, table, path
}

func column(t *testing.T, table *recorder.Table, name string) []float64 {
	t.Helper()
	col, err := table.Column(name)
	require.NoError(t, err)
	return col
}

func TestDC2Gates_Simulated(t *testing.T) {
	s := DC2Gates()
	sim := s.(Simulated).Simulator()
	res, table, _ := run(t, s, sim, map[string]any{
		"Vdss":           []float64{0.01, 0.02},
		"Vg2s":           []float64{0, 0.5},
		"Vg1s":           "-1:1:1",
		"stabilise_time": 0,
	})
	assert.Equal(t, measure.StateCompleted, res.State)
	assert.Equal(t, 12, res.Rows)
	assert.Equal(t, []string{"Vg1", "Vg1m", "Ileak1", "Vg2", "Vg2m", "Ileak2", "Vds", "Vdsm", "Rs"}, table.Columns)

	assert.Equal(t, []float64{-1, 0, 1, -1, 0, 1, -1, 0, 1, -1, 0, 1}, column(t, table, "Vg1"))
	assert.Equal(t, []float64{0, 0, 0, 0.5, 0.5, 0.5, 0, 0, 0, 0.5, 0.5, 0.5}, column(t, table, "Vg2"))
	for _, rs := range column(t, table, "Rs") {
		assert.InDelta(t, 22e3, rs, 1e-6)
	}
	leak := column(t, table, "Ileak1")
	assert.InDelta(t, -1e-9, leak[0], 1e-15)

	// The show-value alarm |Vg1-Vg2| triggers whenever the gates differ.
	assert.Zero(t, res.Alarms["abs(Ileak1) > 1e-8"])
	assert.Equal(t, 10, res.Alarms["abs(Vg1-Vg2)"])

	for _, name := range []string{"Vds", "Vg1", "Vg2"} {
		assert.Equal(t, 0.0, sim.Source(name).Value(), "%s back at zero", name)
	}
}

func TestDC2Gates_CommonGate(t *testing.T) {
	s := DC2Gates()
	sim := s.(Simulated).Simulator()
	res, table, _ := run(t, s, sim, map[string]any{
		"Vdss":           []float64{0.01},
		"Vg2s":           []float64{3},
		"Vg1s":           []float64{0, 1},
		"commongate":     true,
		"stabilise_time": 0,
	})
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, column(t, table, "Vg1"), column(t, table, "Vg2"))
	assert.Equal(t, []float64{0, 1, 0}, sim.Source("Vg2").Calls(), "gate 2 never sees its own sweep")
	assert.Zero(t, res.Alarms["abs(Vg1-Vg2)"])
}

func TestDC2Gates_LeakAlarmStopsWhenAsked(t *testing.T) {
	s := DC2Gates()
	sim := s.(Simulated).Simulator()
	sim.Meters["Vg1m"] = instrument.SimLink{Source: "Vg1", Gain: 0.9}
	res, _, _ := run(t, s, sim, map[string]any{
		"Vg1s":           []float64{0, 0.001, 1, 2},
		"stabilise_time": 0,
	}, measure.WithAbortOn(alarm.CallForHelp))
	assert.Equal(t, measure.StateCancelled, res.State)
	assert.Equal(t, "alarm: abs(Ileak1) > 1e-8", res.StopReason)
	assert.Equal(t, 3, res.Rows)
}

func TestDC2Gates_MissingInstrument(t *testing.T) {
	p := instrument.NewConfigProvider(map[string]instrument.Config{}, nil)
	path := filepath.Join(t.TempDir(), "run.txt")
	res, err := measure.NewRunner(DC2Gates(), nil, measure.WithProvider(p), measure.WithNotifier(nil)).
		Run(context.Background(), nil, path)
	var ie *instrument.Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Vds", ie.Instrument)
	assert.Equal(t, measure.StateFailed, res.State)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no data file before instruments are ready")
}

func TestVNA1Gate_WritesTraces(t *testing.T) {
	s := VNA1Gate()
	sim := s.(Simulated).Simulator()
	res, table, path := run(t, s, sim, map[string]any{
		"Vgs":            []float64{0, 0.5},
		"stabilise_time": 0,
	})
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []string{"Vg", "Vgm", "Ileak", "Vds", "Vdsm", "Rs"}, table.Columns)

	dir := filepath.Join(filepath.Dir(path), "run")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0001_Vg=0.0000_Vds=0.0100.txt", entries[0].Name())
	assert.Equal(t, "0002_Vg=0.5000_Vds=0.0100.txt", entries[1].Name())
}

func TestVNA1Gate_WithoutVNA(t *testing.T) {
	s := VNA1Gate()
	sim := s.(Simulated).Simulator()
	_, _, path := run(t, s, sim, map[string]any{"useVNA": false, "stabilise_time": 0})
	_, err := os.Stat(filepath.Join(filepath.Dir(path), "run"))
	assert.True(t, os.IsNotExist(err))
}

func TestTraceName(t *testing.T) {
	pt := measure.Point{Index: 11, Values: alarm.Observables{"Vg": -0.25, "Vds": 0.01}}
	assert.Equal(t, "0012_Vg=-0.2500_Vds=0.0100.txt", TraceName(pt))
}

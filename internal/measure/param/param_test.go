package param

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mascril/internal/measure/sweep"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Declare(
		Sweep("Vg1s", sweep.New(0)),
		Boolean("commongate", false),
		Scalar("Rg1", 100e3),
		String("comment", ""),
		Path("data_dir", "/tmp/data"),
		Select("mode", []string{"dc", "ac"}, 0),
	)
	require.NoError(t, err)
	return s
}

func TestDeclare_Duplicates(t *testing.T) {
	_, err := Declare(Scalar("R", 1), Scalar("R", 2))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "R", cfgErr.Param)
}

func TestDeclare_InvalidDefaults(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"empty name", Scalar("", 1)},
		{"scalar with string default", Spec{Name: "x", Kind: KindScalar, Default: "1"}},
		{"boolean with number default", Spec{Name: "x", Kind: KindBoolean, Default: 1}},
		{"select without options", Select("x", nil, 0)},
		{"unknown kind", Spec{Name: "x", Kind: "matrix", Default: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Declare(tt.spec)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMustDeclare_Panics(t *testing.T) {
	assert.Panics(t, func() { MustDeclare(Scalar("a", 1), Scalar("a", 1)) })
}

func TestBind_Defaults(t *testing.T) {
	b, err := testSchema(t).Bind(nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{0}, b.Sweep("Vg1s").Values())
	assert.False(t, b.Bool("commongate"))
	assert.Equal(t, 100e3, b.Float("Rg1"))
	assert.Equal(t, "", b.String("comment"))
	assert.Equal(t, "/tmp/data", b.Path("data_dir"))
	assert.Equal(t, "dc", b.String("mode"))
	assert.Equal(t, []string{"Vg1s", "commongate", "Rg1", "comment", "data_dir", "mode"}, b.Names())
}

func TestBind_Overrides(t *testing.T) {
	b, err := testSchema(t).Bind(map[string]any{
		"Vg1s":       []any{0.0, 1, json.Number("2.5")},
		"commongate": true,
		"Rg1":        int64(22000),
		"comment":    "cooldown",
		"mode":       "ac",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2.5}, b.Sweep("Vg1s").Values())
	assert.True(t, b.Bool("commongate"))
	assert.Equal(t, 22000.0, b.Float("Rg1"))
	assert.Equal(t, "cooldown", b.String("comment"))
	assert.Equal(t, "ac", b.String("mode"))
}

func TestBind_SweepForms(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		name string
		raw  any
		want []float64
	}{
		{"sweep value", sweep.New(3, 2), []float64{3, 2}},
		{"float slice", []float64{1, 2}, []float64{1, 2}},
		{"single number", 0.5, []float64{0.5}},
		{"range struct", sweep.Range{Start: 0, Stop: 1, Step: 0.5}, []float64{0, 0.5, 1}},
		{"range map", map[string]any{"start": 1, "stop": 0, "step": 0.5}, []float64{1, 0.5, 0}},
		{"range map round trip", map[string]any{"start": 0, "stop": 1, "step": 1, "round_trip": true}, []float64{0, 1, 1, 0}},
		{"text range", "0:0.2:0.1", []float64{0, 0.1, 0.2}},
		{"text list", "[0, -1]", []float64{0, -1}},
		{"empty list", []any{}, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := s.Bind(map[string]any{"Vg1s": tt.raw})
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Sweep("Vg1s").Values())
		})
	}
}

func TestBind_Errors(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		name  string
		over  map[string]any
		param string
	}{
		{"unknown name", map[string]any{"Vg3s": []float64{1}}, "Vg3s"},
		{"scalar type mismatch", map[string]any{"Rg1": "100k"}, "Rg1"},
		{"boolean type mismatch", map[string]any{"commongate": "yes"}, "commongate"},
		{"string type mismatch", map[string]any{"comment": 5}, "comment"},
		{"path type mismatch", map[string]any{"data_dir": true}, "data_dir"},
		{"select outside options", map[string]any{"mode": "rf"}, "mode"},
		{"sweep bad element", map[string]any{"Vg1s": []any{1, "x"}}, "Vg1s"},
		{"sweep bad text", map[string]any{"Vg1s": "a:b:c"}, "Vg1s"},
		{"range missing stop", map[string]any{"Vg1s": map[string]any{"start": 0, "step": 1}}, "Vg1s"},
		{"range unknown field", map[string]any{"Vg1s": map[string]any{"start": 0, "stop": 1, "num": 3}}, "Vg1s"},
		{"sweep wrong type", map[string]any{"Vg1s": true}, "Vg1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Bind(tt.over)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.param, cfgErr.Param)
		})
	}
}

func TestBind_ReportsAllProblems(t *testing.T) {
	_, err := testSchema(t).Bind(map[string]any{"bogus": 1, "Rg1": "x"})
	require.Error(t, err)

	var params []string
	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	for _, e := range joined.Unwrap() {
		var cfgErr *ConfigurationError
		if errors.As(e, &cfgErr) {
			params = append(params, cfgErr.Param)
		}
	}
	assert.ElementsMatch(t, []string{"bogus", "Rg1"}, params)
}

func TestBinding_KindMismatchPanics(t *testing.T) {
	b, err := testSchema(t).Bind(nil)
	require.NoError(t, err)

	assert.Panics(t, func() { b.Float("commongate") })
	assert.Panics(t, func() { b.Sweep("Rg1") })
	assert.Panics(t, func() { b.Bool("missing") })
	assert.Panics(t, func() { Binding{}.Float("Rg1") })
}

func TestSchema_Lookup(t *testing.T) {
	s := testSchema(t)
	spec, ok := s.Lookup("mode")
	require.True(t, ok)
	assert.Equal(t, KindSelect, spec.Kind)
	assert.Equal(t, []string{"dc", "ac"}, spec.Options)

	_, ok = s.Lookup("nope")
	assert.False(t, ok)
	assert.Len(t, s.Specs(), 6)
}

func TestConfigurationError_Message(t *testing.T) {
	e := &ConfigurationError{Param: "Rg1", Reason: "expected a number, got string"}
	assert.Equal(t, `configuration error: parameter "Rg1": expected a number, got string`, e.Error())
	assert.Equal(t, "configuration error: bad", (&ConfigurationError{Reason: "bad"}).Error())
}

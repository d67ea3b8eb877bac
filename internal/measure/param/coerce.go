package param

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/banshee-data/mascril/internal/measure/sweep"
)

// coerce converts raw into the canonical Go type for the spec's kind.
func (s Spec) coerce(raw any) (any, error) {
	switch s.Kind {
	case KindScalar:
		f, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", raw)
		}
		return f, nil
	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", raw)
		}
		return b, nil
	case KindString, KindPath:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		return str, nil
	case KindSelect:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		if !slices.Contains(s.Options, str) {
			return nil, fmt.Errorf("%q is not one of %s", str, strings.Join(s.Options, ", "))
		}
		return str, nil
	case KindSweep:
		return toSweep(raw)
	default:
		return nil, fmt.Errorf("unsupported kind %q", s.Kind)
	}
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toSweep normalises every accepted sweep form to a *sweep.Sweep.
func toSweep(raw any) (*sweep.Sweep, error) {
	switch v := raw.(type) {
	case *sweep.Sweep:
		if v == nil {
			return sweep.New(), nil
		}
		return v, nil
	case sweep.Range:
		return sweep.FromRange(v)
	case []float64:
		return sweep.New(v...), nil
	case []any:
		values := make([]float64, 0, len(v))
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("sweep element %d: expected a number, got %T", i, item)
			}
			values = append(values, f)
		}
		return sweep.New(values...), nil
	case string:
		return sweep.Parse(v)
	case map[string]any:
		return rangeFromMap(v)
	default:
		if f, ok := toFloat(raw); ok {
			return sweep.New(f), nil
		}
		return nil, fmt.Errorf("expected a sweep (list, range or text), got %T", raw)
	}
}

// rangeFromMap reads the structured range form used in configuration files.
func rangeFromMap(m map[string]any) (*sweep.Sweep, error) {
	var r sweep.Range
	for key, val := range m {
		switch key {
		case "start", "stop", "step":
			f, ok := toFloat(val)
			if !ok {
				return nil, fmt.Errorf("range %s: expected a number, got %T", key, val)
			}
			switch key {
			case "start":
				r.Start = f
			case "stop":
				r.Stop = f
			case "step":
				r.Step = f
			}
		case "round_trip", "from_zero", "to_zero":
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("range %s: expected a boolean, got %T", key, val)
			}
			switch key {
			case "round_trip":
				r.RoundTrip = b
			case "from_zero":
				r.FromZero = b
			case "to_zero":
				r.ToZero = b
			}
		default:
			return nil, fmt.Errorf("range: unknown field %q", key)
		}
	}
	for _, required := range []string{"start", "stop"} {
		if _, ok := m[required]; !ok {
			return nil, fmt.Errorf("range: missing %q", required)
		}
	}
	return sweep.FromRange(r)
}

// Package sweep provides the ordered value sequences a measurement iterates
// over. A Sweep is built from an explicit list, from a Range description or
// from a text form, and can be traversed any number of times.
package sweep

import (
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

// MaxValues bounds the number of values a single sweep may hold. Ranges that
// would exceed it are rejected rather than silently truncated.
const MaxValues = 100000

// roundDecimals is applied to generated range values so that accumulated
// floating point error does not reach the instruments.
const roundDecimals = 12

// Sweep is an immutable, finite, ordered sequence of float64 values.
type Sweep struct {
	values []float64
}

// New returns a sweep over the given values in the given order. The input
// slice is copied.
func New(values ...float64) *Sweep {
	v := make([]float64, len(values))
	copy(v, values)
	return &Sweep{values: v}
}

// Len returns the number of values in the sweep.
func (s *Sweep) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Values returns a copy of the sweep values.
func (s *Sweep) Values() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// All returns an iterator over (index, value) pairs. Every call starts a fresh
// traversal from the first element. An empty sweep yields nothing.
func (s *Sweep) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		if s == nil {
			return
		}
		for i, v := range s.values {
			if !yield(i, v) {
				return
			}
		}
	}
}

// String renders the sweep as a bracketed list, the same form Parse accepts.
func (s *Sweep) String() string {
	if s == nil {
		return "[]"
	}
	parts := make([]string, len(s.values))
	for i, v := range s.values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Range describes a linear sweep from Start to Stop. The sign of Step is
// ignored; the direction is taken from Stop-Start. Stop is always included.
type Range struct {
	Start float64 `json:"start" yaml:"start"`
	Stop  float64 `json:"stop" yaml:"stop"`
	Step  float64 `json:"step" yaml:"step"`

	// RoundTrip appends the reversed sequence, sweeping back to Start.
	RoundTrip bool `json:"round_trip,omitempty" yaml:"round_trip,omitempty"`
	// FromZero prepends a ramp from 0 towards the first value.
	FromZero bool `json:"from_zero,omitempty" yaml:"from_zero,omitempty"`
	// ToZero appends a ramp from the last value back down to 0.
	ToZero bool `json:"to_zero,omitempty" yaml:"to_zero,omitempty"`
}

// FromRange expands r into a sweep.
func FromRange(r Range) (*Sweep, error) {
	values, err := r.expand()
	if err != nil {
		return nil, err
	}
	return &Sweep{values: values}, nil
}

func (r Range) expand() ([]float64, error) {
	for _, v := range []float64{r.Start, r.Stop, r.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("range values must be finite, got start=%g stop=%g step=%g", r.Start, r.Stop, r.Step)
		}
	}
	step := math.Abs(r.Step)

	var values []float64
	if r.Start == r.Stop {
		values = []float64{r.Start}
	} else {
		if step == 0 {
			return nil, fmt.Errorf("step must be non-zero for a range from %g to %g", r.Start, r.Stop)
		}
		var err error
		values, err = ramp(r.Start, r.Stop, step, true)
		if err != nil {
			return nil, err
		}
	}

	if r.RoundTrip {
		back := make([]float64, len(values))
		for i, v := range values {
			back[len(values)-1-i] = v
		}
		values = append(values, back...)
	}

	if r.FromZero && values[0] != 0 {
		if step == 0 {
			return nil, fmt.Errorf("from_zero requires a non-zero step")
		}
		lead, err := ramp(0, values[0], step, false)
		if err != nil {
			return nil, err
		}
		values = append(lead, values...)
	}

	if r.ToZero && values[len(values)-1] != 0 {
		if step == 0 {
			return nil, fmt.Errorf("to_zero requires a non-zero step")
		}
		tail, err := ramp(values[len(values)-1], 0, step, true)
		if err != nil {
			return nil, err
		}
		values = append(values, tail[1:]...)
	}

	if len(values) > MaxValues {
		return nil, fmt.Errorf("range would generate %d values (max %d)", len(values), MaxValues)
	}
	return values, nil
}

// Linspace returns num evenly spaced values from start to stop, both
// included. A single value is start; zero values is an empty sweep.
func Linspace(start, stop float64, num int) (*Sweep, error) {
	if err := finite(start, stop); err != nil {
		return nil, err
	}
	if num < 0 || num > MaxValues {
		return nil, fmt.Errorf("linspace count %d out of range [0, %d]", num, MaxValues)
	}
	values := make([]float64, num)
	for i := range values {
		if num == 1 {
			values[i] = round(start)
			break
		}
		values[i] = round(start + (stop-start)*float64(i)/float64(num-1))
	}
	return &Sweep{values: values}, nil
}

// Arange returns start, start+step, ... up to but excluding stop. The step
// sign must point from start towards stop, otherwise the sweep is empty.
func Arange(start, stop, step float64) (*Sweep, error) {
	if err := finite(start, stop, step); err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("arange step must be non-zero")
	}
	n := math.Ceil((stop-start)/step - 1e-9)
	if n <= 0 {
		return New(), nil
	}
	if n > MaxValues {
		return nil, fmt.Errorf("arange would generate %.0f values (max %d)", n, MaxValues)
	}
	values := make([]float64, int(n))
	for i := range values {
		values[i] = round(start + float64(i)*step)
	}
	return &Sweep{values: values}, nil
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sweep bounds must be finite, got %g", v)
		}
	}
	return nil
}

// ramp returns start, start±step, ... towards stop. When inclusive, stop is
// appended if the last generated value falls short of it.
func ramp(start, stop, step float64, inclusive bool) ([]float64, error) {
	span := math.Abs(stop - start)
	count := int(math.Floor(span/step + 1e-9))
	if count+2 > MaxValues || count < 0 {
		return nil, fmt.Errorf("range from %g to %g with step %g exceeds %d values", start, stop, step, MaxValues)
	}
	dir := 1.0
	if stop < start {
		dir = -1.0
	}

	out := make([]float64, 0, count+2)
	for i := 0; i <= count; i++ {
		v := round(start + dir*float64(i)*step)
		if !inclusive && v == round(stop) {
			break
		}
		out = append(out, v)
	}
	if inclusive && out[len(out)-1] != round(stop) {
		out = append(out, round(stop))
	}
	return out, nil
}

func round(v float64) float64 {
	scale := math.Pow(10, roundDecimals)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}

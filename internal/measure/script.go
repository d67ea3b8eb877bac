// Package measure runs measurement scripts: it binds parameters, iterates
// the script's nested sweep axes, evaluates alarms, records one row per
// step and always returns the instruments to a safe state afterwards.
package measure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure/alarm"
	"github.com/banshee-data/mascril/internal/measure/param"
	"github.com/banshee-data/mascril/internal/measure/sweep"
)

// Script is one measurement procedure.
type Script interface {
	// Name identifies the script in the registry and in run records.
	Name() string
	// Schema declares the parameters the script accepts.
	Schema() *param.Schema
	// Observables lists the recorded columns in order.
	Observables() []string
	// Alarms lists the guard expressions evaluated at every step.
	Alarms() []alarm.Rule
	// Prepare acquires instruments into rack and returns the plan to run.
	Prepare(ctx context.Context, b param.Binding, rack *instrument.Rack, p instrument.Provider) (*Plan, error)
	// TidyUp runs during teardown, before the rack drives every source to
	// its safe state. It must tolerate a partially prepared rack.
	TidyUp(ctx context.Context, rack *instrument.Rack) error
}

// Axis is one sweep dimension of a plan.
type Axis struct {
	Name   string
	Values *sweep.Sweep
	// Source is commanded to the axis value; nil for axes that only label
	// data.
	Source instrument.Source
	// Follows names the axis this one shares its value with. A following
	// axis still iterates its own values but records the leader's value,
	// and its source is only ever driven together with the leader's.
	Follows string
}

// Point is the position of one step in the sweep.
type Point struct {
	// Index counts steps from zero.
	Index int
	Total int
	// Values holds each axis value at this step.
	Values alarm.Observables
}

// Get returns the value of axis name.
func (p Point) Get(name string) float64 { return p.Values[name] }

// StepFunc reads the instruments for one step and returns the measured and
// derived observables.
type StepFunc func(ctx context.Context, pt Point) (alarm.Observables, error)

// TraceFunc captures bulk data after a step's row has been recorded. An
// empty name skips the capture.
type TraceFunc func(ctx context.Context, pt Point) (name string, table [][]float64, err error)

// Plan is what a prepared script asks the runner to do. Axes are listed
// outermost first.
type Plan struct {
	Axes    []Axis
	Settle  time.Duration
	Measure StepFunc
	Trace   TraceFunc
}

// Steps returns the number of steps the plan runs.
func (p *Plan) Steps() int {
	if len(p.Axes) == 0 {
		return 0
	}
	total := 1
	for _, a := range p.Axes {
		total *= a.Values.Len()
	}
	return total
}

func (p *Plan) validate() error {
	if p.Measure == nil {
		return fmt.Errorf("plan has no measure function")
	}
	if len(p.Axes) == 0 {
		return fmt.Errorf("plan has no axes")
	}
	if p.Settle < 0 {
		return fmt.Errorf("negative settle time %v", p.Settle)
	}
	index := make(map[string]int, len(p.Axes))
	total := 1
	for i, a := range p.Axes {
		if a.Name == "" {
			return fmt.Errorf("axis %d has no name", i)
		}
		if _, dup := index[a.Name]; dup {
			return fmt.Errorf("duplicate axis %q", a.Name)
		}
		index[a.Name] = i
		n := a.Values.Len()
		if n > 0 && total > math.MaxInt/n {
			return fmt.Errorf("sweep has too many steps")
		}
		total *= n
	}
	for _, a := range p.Axes {
		if a.Follows == "" {
			continue
		}
		j, ok := index[a.Follows]
		if !ok {
			return fmt.Errorf("axis %q follows unknown axis %q", a.Name, a.Follows)
		}
		if a.Follows == a.Name {
			return fmt.Errorf("axis %q follows itself", a.Name)
		}
		if p.Axes[j].Follows != "" {
			return fmt.Errorf("axis %q follows %q, which itself follows %q", a.Name, a.Follows, p.Axes[j].Follows)
		}
	}
	return nil
}

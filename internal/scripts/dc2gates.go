package scripts

import (
	"context"
	"time"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/measure/alarm"
	"github.com/banshee-data/mascril/internal/measure/param"
	"github.com/banshee-data/mascril/internal/measure/sweep"
	"github.com/banshee-data/mascril/internal/monitoring"
)

var logf = monitoring.Component("scripts")

// dc2gates measures the DC resistance of a two-gate device: Vds is swept
// outermost, then Vg2, then Vg1. In common-gate mode both gates receive
// the Vg1 value.
type dc2gates struct {
	schema *param.Schema
}

// DC2Gates returns the two-gate DC transport script.
func DC2Gates() measure.Script {
	return &dc2gates{schema: param.MustDeclare(
		param.Sweep("Vdss", sweep.New(0)).WithHelp("drain-source voltages (V)"),
		param.Sweep("Vg1s", sweep.New(0)).WithHelp("gate 1 voltages (V)"),
		param.Sweep("Vg2s", sweep.New(0)).WithHelp("gate 2 voltages (V)"),
		param.Boolean("commongate", false).WithHelp("drive gate 2 with the gate 1 voltage"),
		param.Scalar("Rg1", 100e3).WithHelp("gate 1 series resistance (Ω)"),
		param.Scalar("Rg2", 100e3).WithHelp("gate 2 series resistance (Ω)"),
		param.Scalar("Rds", 22e3).WithHelp("drain-source series resistance (Ω)"),
		param.Scalar("stabilise_time", 0.05).WithHelp("settle time per step (s)"),
		param.String("comment", ""),
		param.Path("data_dir", "."),
	)}
}

func (s *dc2gates) Name() string          { return "dc2gates" }
func (s *dc2gates) Schema() *param.Schema { return s.schema }

func (s *dc2gates) Observables() []string {
	return []string{"Vg1", "Vg1m", "Ileak1", "Vg2", "Vg2m", "Ileak2", "Vds", "Vdsm", "Rs"}
}

func (s *dc2gates) Alarms() []alarm.Rule {
	return []alarm.Rule{
		{Expr: "abs(Ileak1) > 1e-8", Severity: alarm.CallForHelp},
		{Expr: "abs(Ileak2) > 1e-8", Severity: alarm.CallForHelp},
		{Expr: "abs(Vg1-Vg2)", Severity: alarm.ShowValue},
	}
}

func (s *dc2gates) Prepare(ctx context.Context, b param.Binding, rack *instrument.Rack, p instrument.Provider) (*measure.Plan, error) {
	logf("setting up DC sources and voltmeters...")
	vds, err := rack.AcquireSource(ctx, p, "Vds")
	if err != nil {
		return nil, err
	}
	vg1, err := rack.AcquireSource(ctx, p, "Vg1")
	if err != nil {
		return nil, err
	}
	vg2, err := rack.AcquireSource(ctx, p, "Vg2")
	if err != nil {
		return nil, err
	}
	vdsm, err := rack.AcquireMeter(ctx, p, "Vdsm")
	if err != nil {
		return nil, err
	}
	vg1m, err := rack.AcquireMeter(ctx, p, "Vg1m")
	if err != nil {
		return nil, err
	}
	vg2m, err := rack.AcquireMeter(ctx, p, "Vg2m")
	if err != nil {
		return nil, err
	}

	rg1, rg2, rds := b.Float("Rg1"), b.Float("Rg2"), b.Float("Rds")
	vg2Axis := measure.Axis{Name: "Vg2", Values: b.Sweep("Vg2s"), Source: vg2}
	if b.Bool("commongate") {
		vg2Axis.Follows = "Vg1"
	}
	return &measure.Plan{
		Axes: []measure.Axis{
			{Name: "Vds", Values: b.Sweep("Vdss"), Source: vds},
			vg2Axis,
			{Name: "Vg1", Values: b.Sweep("Vg1s"), Source: vg1},
		},
		Settle: seconds(b.Float("stabilise_time")),
		Measure: func(ctx context.Context, pt measure.Point) (alarm.Observables, error) {
			readings, err := readAll(ctx, map[string]instrument.Meter{"Vdsm": vdsm, "Vg1m": vg1m, "Vg2m": vg2m})
			if err != nil {
				return nil, err
			}
			bias, g1, g2 := pt.Get("Vds"), pt.Get("Vg1"), pt.Get("Vg2")
			readings["Ileak1"] = (g1 - readings["Vg1m"]) / rg1
			readings["Ileak2"] = (g2 - readings["Vg2m"]) / rg2
			readings["Rs"] = rds * readings["Vdsm"] / (bias - readings["Vdsm"])
			return readings, nil
		},
	}, nil
}

func (s *dc2gates) TidyUp(context.Context, *instrument.Rack) error {
	logf("driving all voltages back to zero...")
	return nil
}

// Simulator models a device with a 22 kΩ channel and leak-free gates read
// through voltmeters with a 0.01% gain error.
func (s *dc2gates) Simulator() *instrument.SimProvider {
	p := instrument.NewSimProvider()
	p.Meters["Vdsm"] = instrument.SimLink{Source: "Vds", Gain: 0.5}
	p.Meters["Vg1m"] = instrument.SimLink{Source: "Vg1", Gain: 0.9999}
	p.Meters["Vg2m"] = instrument.SimLink{Source: "Vg2", Gain: 0.9999}
	return p
}

// readAll reads every meter, in name order for reproducible traffic.
func readAll(ctx context.Context, meters map[string]instrument.Meter) (alarm.Observables, error) {
	out := make(alarm.Observables, len(meters)+3)
	for _, name := range sortedKeys(meters) {
		v, err := meters[name].ReadInput(ctx)
		if err != nil {
			return nil, instrument.Wrap(name, "read", err)
		}
		out[name] = v
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

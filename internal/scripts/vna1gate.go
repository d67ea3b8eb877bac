package scripts

import (
	"context"
	"fmt"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/measure/alarm"
	"github.com/banshee-data/mascril/internal/measure/param"
	"github.com/banshee-data/mascril/internal/measure/sweep"
)

// vna1gate sweeps one gate at each drain-source voltage and, when useVNA is
// set, stores a network analyser table after every step.
type vna1gate struct {
	schema *param.Schema
}

// VNA1Gate returns the single-gate DC plus RF script.
func VNA1Gate() measure.Script {
	return &vna1gate{schema: param.MustDeclare(
		param.Sweep("Vdss", sweep.New(0.01)).WithHelp("drain-source voltages (V)"),
		param.Sweep("Vgs", sweep.New(0)).WithHelp("gate voltages (V)"),
		param.Boolean("useVNA", true).WithHelp("capture a network analyser table per step"),
		param.Scalar("Rg", 100e3).WithHelp("gate series resistance (Ω)"),
		param.Scalar("Rds", 2.2e3).WithHelp("drain-source series resistance (Ω)"),
		param.Scalar("stabilise_time", 0.3).WithHelp("settle time per step (s)"),
		param.String("comment", ""),
		param.Path("data_dir", "."),
	)}
}

func (s *vna1gate) Name() string          { return "vna1gate" }
func (s *vna1gate) Schema() *param.Schema { return s.schema }

func (s *vna1gate) Observables() []string {
	return []string{"Vg", "Vgm", "Ileak", "Vds", "Vdsm", "Rs"}
}

func (s *vna1gate) Alarms() []alarm.Rule {
	return []alarm.Rule{{Expr: "abs(Ileak) > 1e-8", Severity: alarm.CallForHelp}}
}

func (s *vna1gate) Prepare(ctx context.Context, b param.Binding, rack *instrument.Rack, p instrument.Provider) (*measure.Plan, error) {
	vg, err := rack.AcquireSource(ctx, p, "Vg")
	if err != nil {
		return nil, err
	}
	vds, err := rack.AcquireSource(ctx, p, "Vds")
	if err != nil {
		return nil, err
	}
	vgm, err := rack.AcquireMeter(ctx, p, "Vgm")
	if err != nil {
		return nil, err
	}
	vdsm, err := rack.AcquireMeter(ctx, p, "Vdsm")
	if err != nil {
		return nil, err
	}
	var vna instrument.Tracer
	if b.Bool("useVNA") {
		logf("setting up VNA")
		if vna, err = rack.AcquireTracer(ctx, p, "vna"); err != nil {
			return nil, err
		}
	}

	rg, rds := b.Float("Rg"), b.Float("Rds")
	plan := &measure.Plan{
		Axes: []measure.Axis{
			{Name: "Vds", Values: b.Sweep("Vdss"), Source: vds},
			{Name: "Vg", Values: b.Sweep("Vgs"), Source: vg},
		},
		Settle: seconds(b.Float("stabilise_time")),
		Measure: func(ctx context.Context, pt measure.Point) (alarm.Observables, error) {
			readings, err := readAll(ctx, map[string]instrument.Meter{"Vgm": vgm, "Vdsm": vdsm})
			if err != nil {
				return nil, err
			}
			bias, gate := pt.Get("Vds"), pt.Get("Vg")
			readings["Ileak"] = (gate - readings["Vgm"]) / rg
			readings["Rs"] = rds * readings["Vdsm"] / (bias - readings["Vdsm"])
			return readings, nil
		},
	}
	if vna != nil {
		plan.Trace = func(ctx context.Context, pt measure.Point) (string, [][]float64, error) {
			table, err := vna.Trace(ctx)
			if err != nil {
				return "", nil, instrument.Wrap("vna", "trace", err)
			}
			return TraceName(pt), table, nil
		}
	}
	return plan, nil
}

// TraceName names the spectrum file of a step, e.g.
// 0003_Vg=0.5000_Vds=0.0100.txt.
func TraceName(pt measure.Point) string {
	return fmt.Sprintf("%04d_Vg=%.4f_Vds=%.4f.txt", pt.Index+1, pt.Get("Vg"), pt.Get("Vds"))
}

func (s *vna1gate) TidyUp(context.Context, *instrument.Rack) error {
	logf("driving all voltages back to zero...")
	return nil
}

// Simulator models a resistive channel and a VNA whose response follows
// the gate voltage.
func (s *vna1gate) Simulator() *instrument.SimProvider {
	p := instrument.NewSimProvider()
	p.Meters["Vdsm"] = instrument.SimLink{Source: "Vds", Gain: 0.5}
	p.Meters["Vgm"] = instrument.SimLink{Source: "Vg", Gain: 1}
	p.Tracers["vna"] = "Vg"
	return p
}

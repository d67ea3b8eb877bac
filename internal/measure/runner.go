package measure

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure/alarm"
	"github.com/banshee-data/mascril/internal/measure/recorder"
	"github.com/banshee-data/mascril/internal/monitoring"
	"github.com/banshee-data/mascril/internal/timeutil"
)

var logf = monitoring.Component("runner")

// ErrBusy is returned by Run while another run is in progress on the same
// Runner.
var ErrBusy = errors.New("a run is already in progress")

// Bookkeeping column names added by WithBookkeeping.
const (
	ColumnStep    = "step"
	ColumnElapsed = "elapsed"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID       uuid.UUID
	Script   string
	DataPath string
	Started  time.Time
	Params   map[string]any
}

// Journal records runs as they start and finish. Journal failures are
// logged and never fail a run.
type Journal interface {
	Begin(ctx context.Context, info RunInfo) error
	Finish(ctx context.Context, res *Result) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithNotifier sets where alarm results are delivered. The default logs
// them.
func WithNotifier(n alarm.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithAbortOn makes triggered alarms of the given severities stop the run
// after the step is recorded. Quit alarms always do; show-value alarms
// never do.
func WithAbortOn(severities ...alarm.Severity) Option {
	return func(r *Runner) { r.abortOn = append(r.abortOn, severities...) }
}

// WithJournal records every run in j.
func WithJournal(j Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithBookkeeping appends step and elapsed-seconds columns to every row.
func WithBookkeeping() Option {
	return func(r *Runner) { r.bookkeeping = true }
}

// WithProvider sets the provider scripts acquire instruments from.
func WithProvider(p instrument.Provider) Option {
	return func(r *Runner) { r.provider = p }
}

// WithRecorderOptions passes options to the data recorder.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(r *Runner) { r.recOpts = append(r.recOpts, opts...) }
}

// Runner executes one script at a time.
type Runner struct {
	script      Script
	flag        *CancelFlag
	clock       timeutil.Clock
	notifier    alarm.Notifier
	abortOn     []alarm.Severity
	journal     Journal
	bookkeeping bool
	provider    instrument.Provider
	recOpts     []recorder.Option

	mu     sync.RWMutex
	active bool
	status Status
}

// NewRunner returns a runner for script that stops when flag is requested.
// A nil flag is never requested.
func NewRunner(script Script, flag *CancelFlag, opts ...Option) *Runner {
	r := &Runner{
		script:   script,
		flag:     flag,
		clock:    timeutil.RealClock{},
		notifier: alarm.LogNotifier{},
		status:   Status{Script: script.Name(), State: StateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Script returns the script the runner executes.
func (r *Runner) Script() Script { return r.script }

// Flag returns the runner's cancel flag.
func (r *Runner) Flag() *CancelFlag { return r.flag }

// Status returns a snapshot of the current or last run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Alarms = slices.Clone(r.status.Alarms)
	return s
}

func (r *Runner) update(fn func(*Status)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

func (r *Runner) setState(s State) {
	r.update(func(st *Status) { st.State = s })
}

// Run binds overrides, prepares the script, records every step to dataPath
// and tears down. The returned error is the one that failed the run; a
// completed or cancelled run returns nil. The Result is returned for every
// run that was started, including failed ones.
func (r *Runner) Run(ctx context.Context, overrides map[string]any, dataPath string) (*Result, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.active = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	started := r.clock.Now()
	res := &Result{
		ID:       id,
		Script:   r.script.Name(),
		DataPath: dataPath,
		Started:  started,
		Alarms:   make(map[string]int),
	}
	r.update(func(st *Status) {
		*st = Status{
			ID:       id.String(),
			Script:   res.Script,
			State:    StateInitializing,
			DataPath: dataPath,
			Started:  &started,
		}
	})
	logf("starting %s run %s", res.Script, id)
	if r.journal != nil {
		info := RunInfo{ID: id, Script: res.Script, DataPath: dataPath, Started: started, Params: overrides}
		if err := r.journal.Begin(ctx, info); err != nil {
			logf("journal: %v", err)
		}
	}

	rack := instrument.NewRack()
	var rec *recorder.Recorder
	// A panicking script still fails the run and gets its teardown.
	runErr := safely(func() error {
		return r.execute(ctx, overrides, dataPath, rack, &rec, res)
	})

	switch {
	case runErr != nil:
		res.State = StateFailed
		res.Err = runErr
		logf("run %s failed: %v", id, runErr)
	case res.StopReason != "":
		res.State = StateCancelled
		logf("run %s cancelled: %s", id, res.StopReason)
	default:
		res.State = StateCompleted
	}
	if rec != nil {
		res.Rows = rec.Rows()
	}

	r.setState(StateTeardown)
	res.TeardownErrs = r.teardown(context.WithoutCancel(ctx), rack, rec)
	res.Finished = r.clock.Now()

	r.update(func(st *Status) {
		st.State = StateDone
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
	})
	logf("run %s %s: %d steps, %d rows in %v", id, res.State, res.Steps, res.Rows, res.Finished.Sub(started))

	if r.journal != nil {
		if err := r.journal.Finish(context.WithoutCancel(ctx), res); err != nil {
			logf("journal: %v", err)
		}
	}
	return res, res.Err
}

// teardown runs exactly once per run: close the recorder, let the script
// tidy up, then drive every acquired source to its safe state. Every
// failure is logged and kept; none stops the remaining actions.
func (r *Runner) teardown(ctx context.Context, rack *instrument.Rack, rec *recorder.Recorder) []error {
	var errs []error
	keep := func(what string, err error) {
		if err == nil {
			return
		}
		logf("teardown: %s: %v", what, err)
		errs = append(errs, err)
	}
	if rec != nil {
		keep("close recorder", rec.Close())
	}
	keep("tidy up", safely(func() error { return r.script.TidyUp(ctx, rack) }))
	keep("reset instruments", rack.Reset(ctx))
	return errs
}

// safely converts a panic in fn into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *Runner) execute(ctx context.Context, overrides map[string]any, dataPath string, rack *instrument.Rack, recp **recorder.Recorder, res *Result) error {
	binding, err := r.script.Schema().Bind(overrides)
	if err != nil {
		return err
	}
	engine, err := alarm.NewEngine(r.script.Alarms()...)
	if err != nil {
		return err
	}
	plan, err := r.script.Prepare(ctx, binding, rack, r.provider)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("script %s returned no plan", r.script.Name())
	}
	if err := plan.validate(); err != nil {
		return fmt.Errorf("script %s: %w", r.script.Name(), err)
	}
	rec, err := recorder.Open(dataPath, r.recOpts...)
	if err != nil {
		return err
	}
	*recp = rec

	res.Total = plan.Steps()
	r.update(func(st *Status) {
		st.State = StateRunning
		st.Total = res.Total
	})
	return r.loop(ctx, plan, engine, rec, res)
}

func (r *Runner) loop(ctx context.Context, plan *Plan, engine *alarm.Engine, rec *recorder.Recorder, res *Result) error {
	axes := plan.Axes
	leaders := make(map[string]int, len(axes))
	for i, a := range axes {
		leaders[a.Name] = i
	}
	followers := make(map[int][]int)
	for i, a := range axes {
		if a.Follows != "" {
			j := leaders[a.Follows]
			followers[j] = append(followers[j], i)
		}
	}
	values := make([][]float64, len(axes))
	for i, a := range axes {
		values[i] = a.Values.Values()
	}

	total := res.Total
	idx := make([]int, len(axes))
	prev := make([]int, len(axes))
	for step := 0; step < total; step++ {
		if reason := r.stopRequested(ctx); reason != "" {
			res.StopReason = reason
			return nil
		}
		res.Steps++
		r.update(func(st *Status) { st.Step = step + 1 })
		logf("step %d/%d", step+1, total)

		// Odometer decomposition, innermost axis fastest.
		n := step
		for i := len(axes) - 1; i >= 0; i-- {
			l := len(values[i])
			idx[i] = n % l
			n /= l
		}
		pt := Point{Index: step, Total: total, Values: make(alarm.Observables, len(axes))}
		for i, a := range axes {
			pt.Values[a.Name] = values[i][idx[i]]
		}
		for _, a := range axes {
			if a.Follows != "" {
				pt.Values[a.Name] = pt.Values[a.Follows]
			}
		}

		// An axis is set when its own loop iteration begins: at the first
		// step, or when it or any axis outside it moved.
		first := 0
		if step > 0 {
			first = len(axes) - 1
			for i := range axes {
				if idx[i] != prev[i] {
					first = i
					break
				}
			}
		}
		for i := first; i < len(axes); i++ {
			a := axes[i]
			if a.Follows != "" {
				continue
			}
			v := pt.Values[a.Name]
			if a.Source != nil {
				if err := a.Source.SetOutput(ctx, v); err != nil {
					return instrument.Wrap(a.Name, "set", err)
				}
			}
			for _, f := range followers[i] {
				if src := axes[f].Source; src != nil {
					if err := src.SetOutput(ctx, v); err != nil {
						return instrument.Wrap(axes[f].Name, "set", err)
					}
				}
			}
		}
		copy(prev, idx)

		if err := r.clock.Sleep(ctx, plan.Settle); err != nil {
			res.StopReason = "context cancelled"
			return nil
		}

		measured, err := plan.Measure(ctx, pt)
		if err != nil {
			return err
		}
		env := make(alarm.Observables, len(pt.Values)+len(measured))
		for k, v := range pt.Values {
			env[k] = v
		}
		for k, v := range measured {
			env[k] = v
		}

		results, err := engine.Evaluate(env)
		if err != nil {
			return err
		}
		stop := r.notify(results, res)

		row, err := r.row(env, step, res.Started)
		if err != nil {
			return err
		}
		if err := rec.WriteRow(row); err != nil {
			return err
		}

		if plan.Trace != nil {
			name, table, err := plan.Trace(ctx, pt)
			if err != nil {
				return err
			}
			if name != "" {
				if _, err := rec.WriteTrace(name, table); err != nil {
					return err
				}
			}
		}

		if stop != "" {
			res.StopReason = stop
			return nil
		}
	}
	return nil
}

// stopRequested polls the cancel flag and the context.
func (r *Runner) stopRequested(ctx context.Context) string {
	if r.flag.Requested() {
		return "stop requested"
	}
	if ctx.Err() != nil {
		return "context cancelled"
	}
	return ""
}

// notify delivers alarm results and returns a non-empty reason when a
// triggered alarm should stop the run.
func (r *Runner) notify(results []alarm.Result, res *Result) string {
	status := make([]AlarmStatus, len(results))
	var stop string
	for i, ar := range results {
		status[i] = AlarmStatus{
			Name:      ar.Rule.Name,
			Severity:  ar.Rule.Severity.String(),
			Triggered: ar.Triggered,
			Value:     ar.Value,
		}
		if r.notifier != nil {
			r.notifier.Notify(ar)
		}
		if !ar.Triggered {
			continue
		}
		res.Alarms[ar.Rule.Name]++
		if stop == "" && r.stops(ar.Rule.Severity) {
			stop = "alarm: " + ar.Rule.Name
		}
	}
	r.update(func(st *Status) { st.Alarms = status })
	return stop
}

// stops reports whether a triggered alarm of severity sev ends the run.
// Show-value alarms never do.
func (r *Runner) stops(sev alarm.Severity) bool {
	switch sev {
	case alarm.ShowValue:
		return false
	case alarm.Quit:
		return true
	}
	return slices.Contains(r.abortOn, sev)
}

// row selects the declared observables from env.
func (r *Runner) row(env alarm.Observables, step int, started time.Time) (recorder.Row, error) {
	names := r.script.Observables()
	row := make(recorder.Row, 0, len(names)+2)
	var missing []string
	for _, name := range names {
		v, ok := env[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		row = append(row, recorder.Field{Name: name, Value: v})
	}
	if len(missing) > 0 {
		return nil, &recorder.SchemaViolationError{Missing: missing}
	}
	if r.bookkeeping {
		row = append(row,
			recorder.Field{Name: ColumnStep, Value: float64(step + 1)},
			recorder.Field{Name: ColumnElapsed, Value: r.clock.Since(started).Seconds()},
		)
	}
	return row, nil
}

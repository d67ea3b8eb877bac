// Package instrument defines the contract the measurement runner expects
// from laboratory instruments, the Rack that tracks what a run acquired,
// and two families of implementations: simulated instruments for dry runs
// and tests, and SCPI instruments reached over serial ports or TCP sockets.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/mascril/internal/monitoring"
)

// Source is an instrument output that can be commanded to a value, such as
// the voltage of a DC source.
type Source interface {
	SetOutput(ctx context.Context, value float64) error
}

// Meter is an instrument input that can be read, such as a voltmeter.
type Meter interface {
	ReadInput(ctx context.Context) (float64, error)
}

// Instrument is both settable and readable.
type Instrument interface {
	Source
	Meter
}

// SafeStater is implemented by sources whose safe state is not zero.
type SafeStater interface {
	SafeOutput() float64
}

// Tracer is implemented by instruments that produce bulk waveform data,
// such as a network analyser returning one table per sweep.
type Tracer interface {
	Trace(ctx context.Context) ([][]float64, error)
}

// Error is an instrument communication or hardware fault.
type Error struct {
	Instrument string
	Op         string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("instrument %s: %s: %v", e.Instrument, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error unless it is nil or already one.
func Wrap(name, op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Instrument: name, Op: op, Err: err}
}

// Provider resolves instrument names to open handles. The returned value
// implements at least one of Source, Meter or Tracer.
type Provider interface {
	Open(ctx context.Context, name string) (any, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, name string) (any, error)

// Open calls f(ctx, name).
func (f ProviderFunc) Open(ctx context.Context, name string) (any, error) { return f(ctx, name) }

var logf = monitoring.Component("instrument")

type entry struct {
	name   string
	handle any
}

// Rack tracks the instruments acquired by one run, in acquisition order.
// Reset drives every acquired source to its safe state.
type Rack struct {
	mu      sync.Mutex
	entries []entry
	index   map[string]int
}

// NewRack returns an empty rack.
func NewRack() *Rack {
	return &Rack{index: make(map[string]int)}
}

// Add registers an already-open handle under name.
func (r *Rack) Add(name string, handle any) error {
	if handle == nil {
		return fmt.Errorf("instrument %s: nil handle", name)
	}
	switch handle.(type) {
	case Source, Meter, Tracer:
	default:
		return fmt.Errorf("instrument %s: %T is neither a source, a meter nor a tracer", name, handle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.index[name]; dup {
		return fmt.Errorf("instrument %s: already acquired", name)
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, handle: handle})
	return nil
}

// Acquire opens name through p and registers it. Failures are wrapped as
// *Error.
func (r *Rack) Acquire(ctx context.Context, p Provider, name string) (any, error) {
	if p == nil {
		return nil, &Error{Instrument: name, Op: "open", Err: errors.New("no instrument provider")}
	}
	h, err := p.Open(ctx, name)
	if err != nil {
		return nil, Wrap(name, "open", err)
	}
	if err := r.Add(name, h); err != nil {
		if c, ok := h.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	logf("acquired %s (%T)", name, h)
	return h, nil
}

// AcquireSource acquires name and checks that it is a Source.
func (r *Rack) AcquireSource(ctx context.Context, p Provider, name string) (Source, error) {
	h, err := r.Acquire(ctx, p, name)
	if err != nil {
		return nil, err
	}
	s, ok := h.(Source)
	if !ok {
		return nil, fmt.Errorf("instrument %s: %T is not a source", name, h)
	}
	return s, nil
}

// AcquireMeter acquires name and checks that it is a Meter.
func (r *Rack) AcquireMeter(ctx context.Context, p Provider, name string) (Meter, error) {
	h, err := r.Acquire(ctx, p, name)
	if err != nil {
		return nil, err
	}
	m, ok := h.(Meter)
	if !ok {
		return nil, fmt.Errorf("instrument %s: %T is not a meter", name, h)
	}
	return m, nil
}

// AcquireTracer acquires name and checks that it is a Tracer.
func (r *Rack) AcquireTracer(ctx context.Context, p Provider, name string) (Tracer, error) {
	h, err := r.Acquire(ctx, p, name)
	if err != nil {
		return nil, err
	}
	t, ok := h.(Tracer)
	if !ok {
		return nil, fmt.Errorf("instrument %s: %T is not a tracer", name, h)
	}
	return t, nil
}

// Get returns the handle registered under name.
func (r *Rack) Get(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].handle, true
}

// Source returns the acquired source registered under name.
func (r *Rack) Source(name string) (Source, bool) {
	h, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	s, ok := h.(Source)
	return s, ok
}

// Meter returns the acquired meter registered under name.
func (r *Rack) Meter(name string) (Meter, bool) {
	h, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	m, ok := h.(Meter)
	return m, ok
}

// Tracer returns the acquired tracer registered under name.
func (r *Rack) Tracer(name string) (Tracer, bool) {
	h, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	t, ok := h.(Tracer)
	return t, ok
}

// Sources returns the names of acquired handles that are sources.
func (r *Rack) Sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.entries {
		if _, ok := e.handle.(Source); ok {
			names = append(names, e.name)
		}
	}
	return names
}

// Names returns the acquired instrument names in acquisition order.
func (r *Rack) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of acquired instruments.
func (r *Rack) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset drives every acquired source to its safe output (zero unless it
// implements SafeStater) and then closes every handle implementing
// io.Closer. It attempts every instrument even when some fail and returns
// all failures joined. The rack is empty afterwards.
func (r *Rack) Reset(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.index = make(map[string]int)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		src, ok := e.handle.(Source)
		if !ok {
			continue
		}
		safe := 0.0
		if s, ok := e.handle.(SafeStater); ok {
			safe = s.SafeOutput()
		}
		logf("driving %s to %g", e.name, safe)
		if err := src.SetOutput(ctx, safe); err != nil {
			errs = append(errs, Wrap(e.name, "reset", err))
		}
	}
	// Close in reverse acquisition order.
	for i := len(entries) - 1; i >= 0; i-- {
		if c, ok := entries[i].handle.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, Wrap(entries[i].name, "close", err))
			}
		}
	}
	return errors.Join(errs...)
}

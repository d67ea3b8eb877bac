package instrument

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// SimSource is a simulated source that remembers the last commanded value.
type SimSource struct {
	mu    sync.Mutex
	name  string
	value float64
	limit float64
	calls []float64
}

// NewSimSource returns a simulated source. Commands with |value| > limit
// fail like an out-of-range request on real hardware; limit 0 means no
// limit.
func NewSimSource(name string, limit float64) *SimSource {
	return &SimSource{name: name, limit: math.Abs(limit)}
}

// SetOutput implements Source.
func (s *SimSource) SetOutput(_ context.Context, value float64) error {
	if s.limit > 0 && math.Abs(value) > s.limit {
		return &Error{Instrument: s.name, Op: "set", Err: fmt.Errorf("%g is out of range ±%g", value, s.limit)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.calls = append(s.calls, value)
	return nil
}

// ReadInput reads back the last commanded value.
func (s *SimSource) ReadInput(context.Context) (float64, error) {
	return s.Value(), nil
}

// Value returns the last commanded value.
func (s *SimSource) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Calls returns every commanded value in order.
func (s *SimSource) Calls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.calls))
	copy(out, s.calls)
	return out
}

// SimMeter reads a value computed by a function, typically of one or more
// simulated sources.
type SimMeter struct {
	read func() float64
}

// NewSimMeter returns a meter reading read().
func NewSimMeter(read func() float64) *SimMeter {
	return &SimMeter{read: read}
}

// ReadInput implements Meter.
func (m *SimMeter) ReadInput(context.Context) (float64, error) {
	return m.read(), nil
}

// Follow returns a meter that reads src's value scaled by gain and shifted
// by offset, the simplest model of a voltmeter across a resistive divider.
func Follow(src *SimSource, gain, offset float64) *SimMeter {
	return NewSimMeter(func() float64 { return src.Value()*gain + offset })
}

// SimTracer returns a fixed-size table derived from a source value, standing
// in for a network analyser.
type SimTracer struct {
	Points int
	Src    *SimSource
}

// Trace implements Tracer. Column 0 is the frequency axis (1 to 10 GHz),
// column 1 a response that scales with the source value.
func (t *SimTracer) Trace(context.Context) ([][]float64, error) {
	n := t.Points
	if n <= 0 {
		n = 11
	}
	bias := 0.0
	if t.Src != nil {
		bias = t.Src.Value()
	}
	table := make([][]float64, n)
	for i := range table {
		f := 1e9 + 9e9*float64(i)/float64(max(n-1, 1))
		table[i] = []float64{f, -20 + bias*math.Log10(f/1e9)}
	}
	return table, nil
}

// SimProvider opens simulated instruments by name. Sources are created on
// first use; Meters maps meter names to the source they follow.
type SimProvider struct {
	mu      sync.Mutex
	sources map[string]*SimSource
	// Meters maps a meter name to the source it follows and the gain applied.
	Meters map[string]SimLink
	// Tracers maps a tracer name to the source it follows.
	Tracers map[string]string
	// Limit applies to every simulated source.
	Limit float64
}

// SimLink connects a simulated meter to a source.
type SimLink struct {
	Source string
	Gain   float64
	Offset float64
}

// NewSimProvider returns an empty provider.
func NewSimProvider() *SimProvider {
	return &SimProvider{
		sources: make(map[string]*SimSource),
		Meters:  make(map[string]SimLink),
		Tracers: make(map[string]string),
	}
}

// Source returns the simulated source name, creating it if needed.
func (p *SimProvider) Source(name string) *SimSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sources[name]
	if !ok {
		s = NewSimSource(name, p.Limit)
		p.sources[name] = s
	}
	return s
}

// Open implements Provider.
func (p *SimProvider) Open(_ context.Context, name string) (any, error) {
	if link, ok := p.Meters[name]; ok {
		return Follow(p.Source(link.Source), link.Gain, link.Offset), nil
	}
	if src, ok := p.Tracers[name]; ok {
		return &SimTracer{Src: p.Source(src)}, nil
	}
	return p.Source(name), nil
}

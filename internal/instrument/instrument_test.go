package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct {
	calls  int
	closed bool
}

func (f *failingSource) SetOutput(context.Context, float64) error {
	f.calls++
	return errors.New("bus fault")
}

func (f *failingSource) Close() error {
	f.closed = true
	return nil
}

type offsetSource struct {
	SimSource
}

func (o *offsetSource) SafeOutput() float64 { return -1.5 }

func TestRack_AddRejectsBadHandles(t *testing.T) {
	r := NewRack()
	assert.Error(t, r.Add("nil", nil))
	assert.Error(t, r.Add("str", "not an instrument"))
	require.NoError(t, r.Add("a", NewSimSource("a", 0)))
	assert.Error(t, r.Add("a", NewSimSource("a", 0)), "duplicate name")
	assert.Equal(t, 1, r.Len())
}

func TestRack_Lookups(t *testing.T) {
	r := NewRack()
	src := NewSimSource("Vg", 0)
	require.NoError(t, r.Add("Vg", src))
	require.NoError(t, r.Add("Vgm", Follow(src, 1, 0)))
	require.NoError(t, r.Add("vna", &SimTracer{}))

	_, ok := r.Source("Vg")
	assert.True(t, ok)
	_, ok = r.Meter("Vgm")
	assert.True(t, ok)
	_, ok = r.Source("Vgm")
	assert.False(t, ok, "a meter is not a source")
	_, ok = r.Tracer("vna")
	assert.True(t, ok)
	_, ok = r.Meter("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Vg", "Vgm", "vna"}, r.Names())
	assert.Equal(t, []string{"Vg"}, r.Sources())
}

func TestRack_AcquireWrapsProviderErrors(t *testing.T) {
	r := NewRack()
	p := ProviderFunc(func(context.Context, string) (any, error) {
		return nil, errors.New("no such device")
	})
	_, err := r.Acquire(context.Background(), p, "Vds")
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Vds", ie.Instrument)
	assert.Equal(t, "open", ie.Op)

	_, err = r.Acquire(context.Background(), nil, "Vds")
	assert.ErrorAs(t, err, &ie)
}

func TestRack_AcquireTypeChecks(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider()
	p.Meters["Vdsm"] = SimLink{Source: "Vds", Gain: 1}
	r := NewRack()

	_, err := r.AcquireSource(ctx, p, "Vdsm")
	assert.Error(t, err)
	m, err := r.AcquireMeter(ctx, NewSimProvider(), "other")
	require.NoError(t, err, "a simulated source is also readable")
	assert.NotNil(t, m)
	_, err = r.AcquireTracer(ctx, p, "Vds")
	assert.Error(t, err)
}

func TestRack_ResetDrivesSourcesToSafeValues(t *testing.T) {
	ctx := context.Background()
	r := NewRack()
	a := NewSimSource("a", 0)
	b := &offsetSource{}
	bad := &failingSource{}
	require.NoError(t, a.SetOutput(ctx, 3))
	require.NoError(t, r.Add("a", a))
	require.NoError(t, r.Add("bad", bad))
	require.NoError(t, r.Add("b", b))

	err := r.Reset(ctx)
	require.Error(t, err)
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "bad", ie.Instrument)

	assert.Equal(t, 0.0, a.Value())
	assert.Equal(t, -1.5, b.Value(), "SafeStater overrides zero")
	assert.Equal(t, 1, bad.calls)
	assert.True(t, bad.closed, "handles are closed even when reset fails")
	assert.Equal(t, 0, r.Len())
	assert.NoError(t, r.Reset(ctx), "second reset has nothing to do")
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("x", "set", nil))
	inner := &Error{Instrument: "a", Op: "read", Err: errors.New("eof")}
	assert.Same(t, inner, Wrap("x", "set", inner))
	err := Wrap("x", "set", errors.New("boom"))
	assert.EqualError(t, err, "instrument x: set: boom")
}

func TestSimSource_Limit(t *testing.T) {
	s := NewSimSource("Vg", 2)
	ctx := context.Background()
	require.NoError(t, s.SetOutput(ctx, -2))
	err := s.SetOutput(ctx, 2.5)
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, -2.0, s.Value())
	assert.Equal(t, []float64{-2}, s.Calls())
}

func TestSimProvider(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider()
	p.Meters["Vgm"] = SimLink{Source: "Vg", Gain: 0.5, Offset: 0.1}
	p.Tracers["vna"] = "Vg"

	h, err := p.Open(ctx, "Vg")
	require.NoError(t, err)
	src := h.(Source)
	require.NoError(t, src.SetOutput(ctx, 2))

	h, err = p.Open(ctx, "Vgm")
	require.NoError(t, err)
	v, err := h.(Meter).ReadInput(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, v, 1e-12)

	h, err = p.Open(ctx, "vna")
	require.NoError(t, err)
	table, err := h.(Tracer).Trace(ctx)
	require.NoError(t, err)
	require.Len(t, table, 11)
	assert.Equal(t, 1e9, table[0][0])
	assert.InDelta(t, 1e10, table[10][0], 1)
	assert.InDelta(t, -18, table[10][1], 1e-9)

	assert.Same(t, p.Source("Vg"), src)
}

package measure

import "sync/atomic"

// CancelFlag is a cooperative stop request shared between a run and
// whoever may want to stop it. The runner only reads it, at the start of
// every step; it never resets it.
type CancelFlag struct {
	requested atomic.Bool
}

// Request asks the current run to stop at its next step boundary.
func (f *CancelFlag) Request() { f.requested.Store(true) }

// Requested reports whether a stop has been requested.
func (f *CancelFlag) Requested() bool {
	if f == nil {
		return false
	}
	return f.requested.Load()
}

// Reset clears a previous request so the flag can be reused.
func (f *CancelFlag) Reset() { f.requested.Store(false) }

package capture

import (
	"context"
	"sync/atomic"
)

// AbortFunc adapts a function to AbortSignal.
type AbortFunc func() bool

func (f AbortFunc) Requested() bool { return f() }

// Resetter is implemented by signals that latch, such as a button press.
type Resetter interface {
	Reset()
}

// Any is raised when one of its signals is.
type Any []AbortSignal

func (a Any) Requested() bool {
	for _, s := range a {
		if s != nil && s.Requested() {
			return true
		}
	}
	return false
}

// Reset clears every member that latches.
func (a Any) Reset() {
	for _, s := range a {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}

// ContextAbort is raised once ctx is done.
func ContextAbort(ctx context.Context) AbortSignal {
	return AbortFunc(func() bool { return ctx.Err() != nil })
}

// Flag is an abort raised programmatically, for example when a stop byte is
// received on the control channel.
type Flag struct {
	set atomic.Bool
}

func (f *Flag) Raise()          { f.set.Store(true) }
func (f *Flag) Requested() bool { return f.set.Load() }
func (f *Flag) Reset()          { f.set.Store(false) }

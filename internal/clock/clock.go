// Package clock abstracts the free running cycle counter used for frame
// timestamps.
package clock

import (
	"sync/atomic"
	"time"
)

// Hz is the counter resolution: one tick per CPU cycle at 168 MHz.
const Hz = 168_000_000

// Clock returns the current 32-bit cycle count. The counter wraps.
type Clock interface {
	Cycles() uint32
}

// Host derives cycles from the monotonic wall clock.
type Host struct {
	start time.Time
}

func NewHost() *Host {
	return &Host{start: time.Now()}
}

func (h *Host) Cycles() uint32 {
	return uint32(uint64(time.Since(h.start).Nanoseconds()) * (Hz / 1_000_000) / 1000)
}

// Fake is a deterministic clock for tests and replays. Each read returns the
// current value and then advances it by Step.
type Fake struct {
	now  atomic.Uint32
	Step uint32
}

func NewFake(start, step uint32) *Fake {
	f := &Fake{Step: step}
	f.now.Store(start)
	return f
}

func (f *Fake) Cycles() uint32 {
	return f.now.Add(f.Step) - f.Step
}

// Set moves the clock to an absolute value.
func (f *Fake) Set(v uint32) {
	f.now.Store(v)
}

// Split converts a cycle count into seconds and nanoseconds the way the pcap
// record header expects them.
func Split(cycles uint32) (sec, nsec uint32) {
	sec = cycles / Hz
	nsec = (cycles % Hz) / 168 * 1000
	return sec, nsec
}

// WindowCycles is the length of one 32-sample window in counter ticks, at
// the 3.39 MHz sample rate.
const WindowCycles = Hz * 32 / 3_390_000

// Func adapts a function to Clock.
type Func func() uint32

func (f Func) Cycles() uint32 { return f() }

// Windows derives the counter from a window count. Replays use it so that
// timestamps follow the recording instead of the host.
func Windows(count func() uint64) Func {
	return func() uint32 { return uint32(count() * WindowCycles) }
}

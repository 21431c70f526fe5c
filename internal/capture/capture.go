// Package capture drains the DMA double buffer that samples the subcarrier
// line and hands out one window per completed region.
package capture

import (
	"sync/atomic"

	"firestige.xyz/nfcsniff/internal/core"
)

// Target names one of the two DMA regions.
type Target uint8

const (
	TargetA Target = iota
	TargetB
)

// Other returns the region the DMA controller is not writing.
func (t Target) Other() Target {
	return t ^ 1
}

// Peripheral is the minimal DMA driver surface. CurrentTarget reports the
// region being written; Read returns the first 32 samples of a region in
// line order (first sample in the MSB, byte swapped by the driver).
type Peripheral interface {
	CurrentTarget() Target
	Read(region Target) core.SampleWindow
}

// AbortSignal is polled between windows.
type AbortSignal interface {
	Requested() bool
}

// abortPollSpins bounds how long a stalled DMA can hide an abort request.
const abortPollSpins = 256

// Stats counts pipeline activity. Fields are updated with atomics so that a
// metrics collector may read them while the capture runs.
type Stats struct {
	Windows atomic.Uint64
	Spins   atomic.Uint64
}

// Pipeline returns successive windows from the double buffer. It must be
// polled faster than the DMA fills a region: the region just vacated is read
// before the controller wraps back into it.
type Pipeline struct {
	periph Peripheral
	abort  AbortSignal
	target Target
	stats  Stats
}

// New latches the region currently written by the DMA controller.
func New(p Peripheral, abort AbortSignal) *Pipeline {
	return &Pipeline{
		periph: p,
		abort:  abort,
		target: p.CurrentTarget(),
	}
}

// Next busy-waits for the DMA controller to switch regions and returns the
// first window of the region it just completed. It returns core.ErrAbort when
// the abort signal is raised.
func (p *Pipeline) Next() (core.SampleWindow, error) {
	if p.abort.Requested() {
		return 0, core.ErrAbort
	}
	for spins := 1; ; spins++ {
		t := p.periph.CurrentTarget()
		if t != p.target {
			done := p.target
			p.target = t
			p.stats.Windows.Add(1)
			return p.periph.Read(done), nil
		}
		p.stats.Spins.Add(1)
		if spins%abortPollSpins == 0 && p.abort.Requested() {
			return 0, core.ErrAbort
		}
	}
}

// Stats exposes the live counters.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

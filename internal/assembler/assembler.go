// Package assembler implements frame synchronization and byte assembly for
// the oversampled ISO14443A subcarrier stream.
//
// Windows are pushed one at a time in arrival order. The assembler waits for
// the line to change, aligns the following windows on that edge, classifies
// the first aligned window as a start symbol and then decodes one bit per
// aligned window until two consecutive idle windows close the frame.
package assembler

import (
	"math/bits"

	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/decoder"
	"firestige.xyz/nfcsniff/internal/log"
)

const (
	// TurnaroundShift re-centers reader bits when the SOF pause was hidden by
	// the tag idle level: the first visible edge is the end of the pause, about
	// 9 samples (2..3.1 us) after the bit start, plus 6 samples of margin.
	TurnaroundShift = 15

	// MinPartialBits is the smallest pending bit count flushed at end of frame.
	MinPartialBits = 4

	// idleWindowsEOF consecutive idle aligned windows close a frame.
	idleWindowsEOF = 2
)

// FrameHandler receives every completed frame that carries at least one byte.
type FrameHandler interface {
	HandleFrame(f *core.Frame) error
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(f *core.Frame) error

func (fn FrameHandlerFunc) HandleFrame(f *core.Frame) error { return fn(f) }

// Options tune the assembler for a session.
type Options struct {
	// Parity reports the 9th bit of every byte. The bit is consumed either way.
	Parity bool
	// Raw relays the ClassCode of every aligned window instead of decoding
	// bits. Used for ISO14443B and for raw 848 kHz captures.
	Raw bool
}

type state int

const (
	stateIdle state = iota
	stateSearching
	stateStart
	stateLocked
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSearching:
		return "searching"
	case stateStart:
		return "start"
	case stateLocked:
		return "locked"
	}
	return "invalid"
}

// Stats counts assembler events since creation.
type Stats struct {
	Windows        uint64
	Frames         uint64
	EmptyFrames    uint64
	Bytes          uint64
	UnknownStarts  uint64 // turnarounds excluded
	Turnarounds    uint64
	HandlerErrors  uint64
	DiscardedBits  uint64
	PartialFlushes uint64
}

// Assembler is the frame synchronization state machine. It is not safe for
// concurrent use; the capture loop owns it.
type Assembler struct {
	opts    Options
	clock   clock.Clock
	handler FrameHandler
	logger  log.Logger

	state   state
	prev    core.SampleWindow // reference window while searching
	prevBit uint32
	lsh     uint
	rsh     uint
	cur     core.SampleWindow // last raw window, source of the next aligned one

	last   core.Modulation // last locked modulation, drives the turnaround
	mod    core.Modulation
	resync uint
	frame  *core.Frame

	acc   uint8
	nbits uint8

	idle     int
	held     uint32
	haveHeld bool

	stats Stats
}

// New returns an assembler delivering frames to h, timestamped with c.
func New(c clock.Clock, h FrameHandler, opts Options) *Assembler {
	return &Assembler{
		opts:    opts,
		clock:   c,
		handler: h,
		logger:  log.GetLogger().WithField("component", "assembler"),
	}
}

// Push feeds the next raw window.
func (a *Assembler) Push(w core.SampleWindow) {
	a.stats.Windows++

	switch a.state {
	case stateIdle:
		a.prev = w
		a.prevBit = w.LastSample()
		a.state = stateSearching

	case stateSearching:
		if w == a.prev {
			a.prevBit = w.LastSample()
			return
		}
		x := uint32(w)
		if a.prevBit == 1 {
			x = ^x
		}
		a.lsh = uint(bits.LeadingZeros32(x))
		a.rsh = 32 - a.lsh
		a.cur = w
		a.state = stateStart

	case stateStart:
		a.start(a.align(w))

	case stateLocked:
		f := a.align(w)
		if core.SampleWindow(f).Idle() {
			a.idle++
			if a.idle >= idleWindowsEOF {
				a.endFrame()
				return
			}
			a.held = f
			a.haveHeld = true
			return
		}
		if a.haveHeld {
			a.consume(a.held)
			a.haveHeld = false
		}
		a.idle = 0
		a.consume(f)
	}
}

// Finish closes an open frame, as if end of frame had been seen. It is called
// when the capture is aborted.
func (a *Assembler) Finish() {
	if a.state == stateLocked {
		a.endFrame()
	}
	a.state = stateIdle
}

// Stats returns a snapshot of the counters.
func (a *Assembler) Stats() Stats {
	return a.stats
}

// Shifts >= 32 yield 0 in Go, which keeps CLZ results of 32 well defined.
func (a *Assembler) align(w core.SampleWindow) uint32 {
	f := uint32(a.cur)<<a.lsh | uint32(w)>>a.rsh
	a.cur = w
	return f
}

func (a *Assembler) start(f uint32) {
	code := decoder.Downsample(core.SampleWindow(f))

	a.frame = &core.Frame{StartCode: code, StartCycles: a.clock.Cycles()}
	a.acc, a.nbits = 0, 0
	a.idle, a.haveHeld = 0, false
	a.resync = 0
	a.state = stateLocked

	if a.opts.Raw {
		a.mod = core.ModulationRaw848k
		a.frame.Modulation = a.mod
		a.frame.Raw = true
		a.emit(core.DecodedByte{Value: uint8(code), Bits: 8})
		return
	}

	switch m := decoder.ClassifyStart(code); m {
	case core.ModulationMiller, core.ModulationManchester:
		a.mod = m
		a.last = m
	default:
		if a.last == core.ModulationManchester {
			// A reader command always follows a tag answer.
			a.stats.Turnarounds++
			a.mod = core.ModulationMiller
			a.last = core.ModulationMiller
			a.resync = TurnaroundShift
			a.logger.Tracef("turnaround resync on start code %02X", code)
		} else {
			a.stats.UnknownStarts++
			a.mod = core.ModulationUnknown
			a.frame.Raw = true
			a.logger.WithField("code", code).Debug("unknown protocol start symbol")
		}
	}
	a.frame.Modulation = a.mod
}

func (a *Assembler) consume(f uint32) {
	if a.resync > 0 {
		f = f>>a.resync | 0xFFFFFFFF<<(32-a.resync)
	}
	code := decoder.Downsample(core.SampleWindow(f))

	if a.mod == core.ModulationUnknown || a.mod == core.ModulationRaw848k {
		a.emit(core.DecodedByte{Value: uint8(code), Bits: 8})
		return
	}

	bit := decoder.DecodeBit(code, a.mod)
	if a.nbits < 8 {
		a.acc |= bit << a.nbits
		a.nbits++
		return
	}
	b := core.DecodedByte{Value: a.acc, Bits: 8}
	if a.opts.Parity {
		b.Parity = bit
		b.HasParity = true
	}
	a.emit(b)
	a.acc, a.nbits = 0, 0
}

func (a *Assembler) emit(b core.DecodedByte) {
	a.frame.Bytes = append(a.frame.Bytes, b)
}

func (a *Assembler) endFrame() {
	f := a.frame
	if a.mod == core.ModulationMiller || a.mod == core.ModulationManchester {
		switch {
		case a.nbits == 8:
			a.emit(core.DecodedByte{Value: a.acc, Bits: 8})
		case a.nbits >= MinPartialBits:
			a.stats.PartialFlushes++
			a.emit(core.DecodedByte{Value: a.acc, Bits: a.nbits})
		default:
			a.stats.DiscardedBits += uint64(a.nbits)
		}
	}
	f.EndCycles = a.clock.Cycles()

	a.frame = nil
	a.acc, a.nbits = 0, 0
	a.idle, a.haveHeld = 0, false
	a.prev = a.cur
	a.prevBit = a.cur.LastSample()
	a.state = stateSearching

	if len(f.Bytes) == 0 {
		a.stats.EmptyFrames++
		return
	}
	a.stats.Frames++
	a.stats.Bytes += uint64(len(f.Bytes))
	if err := a.handler.HandleFrame(f); err != nil {
		a.stats.HandlerErrors++
		a.logger.WithError(err).Debug("frame handler failed")
	}
}

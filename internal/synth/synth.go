// Package synth renders ISO14443A frames into oversampled subcarrier windows,
// the inverse of the decoder tables. It produces replay streams for bench
// testing without an RF front-end.
package synth

import (
	"encoding/binary"
	"io"
	"math/bits"

	"firestige.xyz/nfcsniff/internal/core"
)

const (
	// SamplesPerBit is the oversampling of one 106 kbps bit period.
	SamplesPerBit = 32
	// DefaultPause is the reader pause length in samples (about 2.65 us).
	DefaultPause = 9
)

// Builder accumulates line samples, one byte per sample holding 0 or 1.
type Builder struct {
	samples []uint8
	pause   int
}

func NewBuilder() *Builder {
	return &Builder{pause: DefaultPause}
}

// Pause sets the reader pause length used by following reader frames.
func (b *Builder) Pause(n int) *Builder {
	b.pause = n
	return b
}

// Level appends n samples at a constant level.
func (b *Builder) Level(v uint8, n int) *Builder {
	for i := 0; i < n; i++ {
		b.samples = append(b.samples, v&1)
	}
	return b
}

// ReaderFrame appends a modified Miller frame: SOF, the data bits LSB first,
// an odd parity bit after every complete byte when parity is set, then EOF.
// lastBits limits the final byte to a short frame (7 for REQA); 0 means 8.
// The field is left high.
func (b *Builder) ReaderFrame(data []byte, lastBits int, parity bool) *Builder {
	return b.ReaderBits(FrameBits(data, lastBits, parity))
}

// ReaderBits appends a modified Miller frame carrying the given bits.
func (b *Builder) ReaderBits(frame []uint8) *Builder {
	prev := uint8(0)
	b.miller(0, prev) // SOF is a logic 0 with a pause at bit start
	for _, bit := range frame {
		b.miller(bit, prev)
		prev = bit
	}
	// EOF: logic 0 followed by no modulation
	b.miller(0, prev)
	b.Level(1, SamplesPerBit)
	return b
}

// TagFrame appends a Manchester frame: SOF, data bits LSB first with odd
// parity when set, then one bit period without modulation. The line is left
// low.
func (b *Builder) TagFrame(data []byte, parity bool) *Builder {
	return b.TagBits(FrameBits(data, 0, parity))
}

// TagBits appends a Manchester frame carrying the given bits.
func (b *Builder) TagBits(frame []uint8) *Builder {
	b.manchester(1)
	for _, bit := range frame {
		b.manchester(bit)
	}
	b.Level(0, SamplesPerBit)
	return b
}

// Raw appends literal windows.
func (b *Builder) Raw(windows ...core.SampleWindow) *Builder {
	for _, w := range windows {
		for i := 31; i >= 0; i-- {
			b.samples = append(b.samples, uint8(w>>uint(i))&1)
		}
	}
	return b
}

// Windows packs the samples into 32-sample windows. A trailing partial window
// is padded with the last level.
func (b *Builder) Windows() []core.SampleWindow {
	n := (len(b.samples) + SamplesPerBit - 1) / SamplesPerBit
	out := make([]core.SampleWindow, 0, n)
	last := uint8(1)
	if len(b.samples) > 0 {
		last = b.samples[len(b.samples)-1]
	}
	for i := 0; i < n; i++ {
		var w uint32
		for j := 0; j < SamplesPerBit; j++ {
			s := last
			if k := i*SamplesPerBit + j; k < len(b.samples) {
				s = b.samples[k]
			}
			w = w<<1 | uint32(s)
		}
		out = append(out, core.SampleWindow(w))
	}
	return out
}

// WriteTo writes the windows as a big-endian u32 stream, the format read by
// capture.ReplayPeripheral.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	windows := b.Windows()
	buf := make([]byte, 4*len(windows))
	for i, win := range windows {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(win))
	}
	n, err := w.Write(buf)
	return int64(n), err
}

func (b *Builder) miller(bit, prev uint8) {
	switch {
	case bit == 1: // X
		b.Level(1, SamplesPerBit/2).Level(0, b.pause).Level(1, SamplesPerBit/2-b.pause)
	case prev == 1: // Y
		b.Level(1, SamplesPerBit)
	default: // Z
		b.Level(0, b.pause).Level(1, SamplesPerBit-b.pause)
	}
}

func (b *Builder) manchester(bit uint8) {
	if bit == 1 { // D
		b.Level(1, SamplesPerBit/2).Level(0, SamplesPerBit/2)
		return
	}
	// E
	b.Level(0, SamplesPerBit/2).Level(1, SamplesPerBit/2)
}

// OddParity returns the ISO14443A parity bit of v.
func OddParity(v byte) uint8 {
	return uint8(bits.OnesCount8(v)&1) ^ 1
}

// FrameBits serializes bytes LSB first, with an odd parity bit after every
// complete byte when parity is set.
func FrameBits(data []byte, lastBits int, parity bool) []uint8 {
	out := make([]uint8, 0, len(data)*9)
	for i, v := range data {
		n := 8
		if i == len(data)-1 && lastBits > 0 && lastBits < 8 {
			n = lastBits
		}
		for j := 0; j < n; j++ {
			out = append(out, (v>>uint(j))&1)
		}
		if parity && n == 8 {
			out = append(out, OddParity(v))
		}
	}
	return out
}

// Package core defines core types with zero external dependencies.
package core

import "fmt"

// SampleWindow is one DMA-delivered slice of the oversampled subcarrier line.
// The first sample is the most significant bit.
type SampleWindow uint32

// Idle reports whether the window is a constant line level.
func (w SampleWindow) Idle() bool {
	return w == 0 || w == 0xFFFFFFFF
}

// LastSample returns the level of the most recent sample in the window.
func (w SampleWindow) LastSample() uint32 {
	return uint32(w) & 1
}

// ClassCode is a window downsampled 4:1, four 2-bit symbols packed MSB first.
type ClassCode uint8

// Modulation is the line code the assembler believes is active.
// Values match the modulation byte of the binary relay header.
type Modulation uint8

const (
	ModulationUnknown    Modulation = 0
	ModulationMiller     Modulation = 1 // ISO14443A PCD->PICC, modified Miller 106 kbps
	ModulationManchester Modulation = 2 // ISO14443A PICC->PCD, Manchester 106 kbps
	ModulationRaw848k    Modulation = 3 // raw ISO14443A/B capture, relay only
)

func (m Modulation) String() string {
	switch m {
	case ModulationUnknown:
		return "unknown"
	case ModulationMiller:
		return "miller"
	case ModulationManchester:
		return "manchester"
	case ModulationRaw848k:
		return "raw848k"
	}
	return fmt.Sprintf("modulation(%d)", uint8(m))
}

// Link selects the RF protocol the front-end is configured for.
type Link string

const (
	LinkISO14443A Link = "iso14443a"
	LinkISO14443B Link = "iso14443b"
)

// ParseLink accepts "a", "b" or the full link name.
func ParseLink(s string) (Link, error) {
	switch s {
	case "a", "A", string(LinkISO14443A):
		return LinkISO14443A, nil
	case "b", "B", string(LinkISO14443B):
		return LinkISO14443B, nil
	}
	return "", fmt.Errorf("%w: unknown link %q", ErrConfigInvalid, s)
}

// DecodedByte is one assembled byte. Bits is 8 for a complete byte and 4..7
// for a padded partial byte flushed at end of frame.
type DecodedByte struct {
	Value     uint8
	Bits      uint8
	Parity    uint8
	HasParity bool
}

// Partial reports whether the byte was padded at end of frame.
func (b DecodedByte) Partial() bool {
	return b.Bits < 8
}

// Frame is a sequence of bytes bounded by a start symbol and an idle end of
// frame. Cycle timestamps come from the session clock.
type Frame struct {
	Modulation  Modulation
	StartCode   ClassCode // first aligned code, meaningful for unknown frames
	Raw         bool      // bytes are raw class codes, not decoded bits
	Bytes       []DecodedByte
	StartCycles uint32
	EndCycles   uint32
}

// Duration returns the frame length in clock cycles.
func (f *Frame) Duration() uint32 {
	return f.EndCycles - f.StartCycles
}

// Data returns the frame byte values.
func (f *Frame) Data() []byte {
	out := make([]byte, len(f.Bytes))
	for i, b := range f.Bytes {
		out[i] = b.Value
	}
	return out
}

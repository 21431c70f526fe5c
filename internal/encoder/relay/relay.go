// Package relay implements the compact binary frame relay format.
//
// Frame record layout:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       1     Options: bits 0-2 version (0), bit 3 start timestamp,
//	              bit 4 end timestamp, bit 5 parity, bit 6 raw codes
//	1       1     Modulation (0 unknown, 1 Miller, 2 Manchester, 3 raw 848k)
//	2       2     Payload length (big-endian uint16)
//	4       4     Start cycle count (big-endian uint32), when bit 3 is set
//	…       n     Payload: each byte, followed by its parity bit as one byte
//	              when bit 5 is set and the byte carries parity
//	…       4     End cycle count (big-endian uint32), when bit 4 is set
//
// Frames without bytes are not relayed.
package relay

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
)

const Name = "relay"

const (
	headerLen = 4

	Version           = 0
	OptStartTimestamp = 1 << 3
	OptEndTimestamp   = 1 << 4
	OptParity         = 1 << 5
	OptRaw            = 1 << 6
)

// Header is the fixed part of a relay record.
type Header struct {
	Options    uint8
	Modulation core.Modulation
	Length     uint16
}

// Encoder writes relay records synchronously to its target.
type Encoder struct {
	w      io.Writer
	flags  encoder.Flags
	record []byte
	open   bool
}

// New is the registry factory. The relay format takes no options.
func New(options map[string]interface{}) (encoder.Encoder, error) {
	var none struct{}
	if err := encoder.DecodeOptions(options, &none); err != nil {
		return nil, err
	}
	return &Encoder{record: make([]byte, 0, 512)}, nil
}

func (e *Encoder) Name() string { return Name }

func (e *Encoder) Open(t encoder.Target) error {
	e.w = t.W
	e.flags = t.Flags
	e.open = true
	return nil
}

func (e *Encoder) HandleFrame(f *core.Frame) error {
	if !e.open {
		return core.ErrEncoderClosed
	}
	if len(f.Bytes) == 0 {
		return nil
	}
	rec, err := Append(e.record[:0], f, e.flags)
	if err != nil {
		return err
	}
	e.record = rec
	if _, err := e.w.Write(rec); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

func (e *Encoder) Close() error {
	e.open = false
	return nil
}

// Append encodes one record onto dst.
func Append(dst []byte, f *core.Frame, flags encoder.Flags) ([]byte, error) {
	n := PayloadLen(f, flags)
	if n > math.MaxUint16 {
		return dst, fmt.Errorf("relay: frame payload of %d bytes exceeds the length field", n)
	}

	var opts uint8 = Version
	if flags.StartTimestamp {
		opts |= OptStartTimestamp
	}
	if flags.EndTimestamp {
		opts |= OptEndTimestamp
	}
	if flags.Parity {
		opts |= OptParity
	}
	if f.Raw {
		opts |= OptRaw
	}

	dst = append(dst, opts, uint8(f.Modulation))
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	if flags.StartTimestamp {
		dst = binary.BigEndian.AppendUint32(dst, f.StartCycles)
	}
	for _, b := range f.Bytes {
		dst = append(dst, b.Value)
		if flags.Parity && b.HasParity {
			dst = append(dst, b.Parity)
		}
	}
	if flags.EndTimestamp {
		dst = binary.BigEndian.AppendUint32(dst, f.EndCycles)
	}
	return dst, nil
}

// PayloadLen counts data bytes plus parity markers.
func PayloadLen(f *core.Frame, flags encoder.Flags) int {
	n := len(f.Bytes)
	if flags.Parity {
		for _, b := range f.Bytes {
			if b.HasParity {
				n++
			}
		}
	}
	return n
}

// ParseHeader decodes the fixed header at the start of p.
func ParseHeader(p []byte) (Header, error) {
	if len(p) < headerLen {
		return Header{}, io.ErrUnexpectedEOF
	}
	return Header{
		Options:    p[0],
		Modulation: core.Modulation(p[1]),
		Length:     binary.BigEndian.Uint16(p[2:4]),
	}, nil
}

// RecordLen returns the full record size described by h.
func (h Header) RecordLen() int {
	n := headerLen + int(h.Length)
	if h.Options&OptStartTimestamp != 0 {
		n += 4
	}
	if h.Options&OptEndTimestamp != 0 {
		n += 4
	}
	return n
}

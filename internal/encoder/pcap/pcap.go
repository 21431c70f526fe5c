// Package pcap implements the pcap capture file encoder.
//
// The global header is written by gopacket's pcapgo with link type 147
// (USER0). Each record carries an 8-byte pseudo header followed by the frame
// bytes:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       1     Field power, always 0x7F
//	1       1     Direction: 0xB0 reader (PCD), 0xB1 tag (PICC), 0xB2 unknown
//	2       1     Bit rate: 0xC0 (106 kbps)
//	3       4     End cycle count (big-endian uint32)
//	7       1     Parity marker: 0xD1 when parity bytes are enabled, else 0xD0
//	8       n     Frame bytes; a frame without bytes carries one 0x00 pad byte
//
// The record timestamp is the start cycle count converted at 168 MHz. Files
// use the nanosecond variant (magic 0xa1b23c4d) unless the nanosecond option
// is false.
package pcap

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
)

const Name = "pcap"

// LinkTypeUser0 is DLT_USER0, the private use link type the records carry.
const LinkTypeUser0 = layers.LinkType(147)

const (
	DefaultSnaplen = 0xffff

	pseudoHeaderLen = 8

	power     = 0x7F
	dirReader = 0xB0
	dirTag    = 0xB1
	dirOther  = 0xB2
	rate106k  = 0xC0
	parityOff = 0xD0
	parityOn  = 0xD1
)

type Options struct {
	// Nanosecond selects the nanosecond resolution file variant; nil means
	// true. The microsecond variant truncates the sub-second field.
	Nanosecond *bool `mapstructure:"nanosecond"`
	// Snaplen is the global header snapshot length.
	Snaplen uint32 `mapstructure:"snaplen"`
	// Epoch is added to every record time, in Unix seconds.
	Epoch int64 `mapstructure:"epoch"`
}

// Encoder writes one pcap stream per Open.
type Encoder struct {
	opts   Options
	flags  encoder.Flags
	w      *pcapgo.Writer
	record []byte
	open   bool
}

// New is the registry factory.
func New(options map[string]interface{}) (encoder.Encoder, error) {
	var opts Options
	if err := encoder.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Snaplen == 0 {
		opts.Snaplen = DefaultSnaplen
	}
	if opts.Nanosecond == nil {
		nanos := true
		opts.Nanosecond = &nanos
	}
	return &Encoder{opts: opts, record: make([]byte, 0, 256)}, nil
}

func (e *Encoder) Name() string { return Name }

// Open writes the global header.
func (e *Encoder) Open(t encoder.Target) error {
	if *e.opts.Nanosecond {
		e.w = pcapgo.NewWriterNanos(t.W)
	} else {
		e.w = pcapgo.NewWriter(t.W)
	}
	if err := e.w.WriteFileHeader(e.opts.Snaplen, LinkTypeUser0); err != nil {
		return fmt.Errorf("pcap header: %w", err)
	}
	e.flags = t.Flags
	e.open = true
	return nil
}

func (e *Encoder) HandleFrame(f *core.Frame) error {
	if !e.open {
		return core.ErrEncoderClosed
	}
	e.record = AppendRecordData(e.record[:0], f, e.flags.Parity)
	ci := gopacket.CaptureInfo{
		Timestamp:     Timestamp(f.StartCycles, e.opts.Epoch),
		CaptureLength: len(e.record),
		Length:        len(e.record),
	}
	if err := e.w.WritePacket(ci, e.record); err != nil {
		return fmt.Errorf("pcap record: %w", err)
	}
	return nil
}

func (e *Encoder) Close() error {
	e.open = false
	return nil
}

// AppendRecordData appends the pseudo header and frame bytes onto dst.
func AppendRecordData(dst []byte, f *core.Frame, parity bool) []byte {
	dir := byte(dirOther)
	switch f.Modulation {
	case core.ModulationMiller:
		dir = dirReader
	case core.ModulationManchester:
		dir = dirTag
	}
	marker := byte(parityOff)
	if parity {
		marker = parityOn
	}

	dst = append(dst, power, dir, rate106k)
	dst = binary.BigEndian.AppendUint32(dst, f.EndCycles)
	dst = append(dst, marker)

	if len(f.Bytes) == 0 {
		return append(dst, 0x00)
	}
	for _, b := range f.Bytes {
		dst = append(dst, b.Value)
	}
	return dst
}

// Timestamp converts a cycle count to the record time.
func Timestamp(cycles uint32, epoch int64) time.Time {
	sec, nsec := clock.Split(cycles)
	return time.Unix(epoch+int64(sec), int64(nsec)).UTC()
}


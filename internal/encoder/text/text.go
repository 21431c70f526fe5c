// Package text implements the human readable hex trace.
//
// One line per frame:
//
//	\r\n[SSSSSSSS\t]MARK\tBB BB BB ...[\tDDDDDDDD]
//
// SSSSSSSS is the start cycle count, MARK is RDR (reader, Miller), TAG (tag,
// Manchester) or Uxx for an unknown start code xx, and DDDDDDDD the frame
// duration in cycles. Bytes are followed by a space, with one more space
// after every eighth byte. A padded partial byte ending the frame and raw
// class codes of unknown frames carry no space. Parity bits are not shown.
package text

import (
	"fmt"
	"io"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
)

const Name = "text"

const hexDigits = "0123456789ABCDEF"

// groupSize bytes are separated from the next group by an extra space.
const groupSize = 8

type Options struct {
	// Group overrides the extra-space interval, 0 keeps the default.
	Group int `mapstructure:"group"`
}

// Encoder writes the hex trace.
type Encoder struct {
	w     io.Writer
	flags encoder.Flags
	group int
	line  []byte
	open  bool
}

// New is the registry factory.
func New(options map[string]interface{}) (encoder.Encoder, error) {
	var opts Options
	if err := encoder.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Group < 0 {
		return nil, fmt.Errorf("%w: group must not be negative", core.ErrConfigInvalid)
	}
	if opts.Group == 0 {
		opts.Group = groupSize
	}
	return &Encoder{group: opts.Group, line: make([]byte, 0, 256)}, nil
}

func (e *Encoder) Name() string { return Name }

func (e *Encoder) Open(t encoder.Target) error {
	e.w = t.W
	e.flags = t.Flags
	e.open = true
	return nil
}

// HandleFrame renders one frame and writes it with a single Write call.
func (e *Encoder) HandleFrame(f *core.Frame) error {
	if !e.open {
		return core.ErrEncoderClosed
	}
	e.line = Append(e.line[:0], f, e.flags, e.group)
	if _, err := e.w.Write(e.line); err != nil {
		return fmt.Errorf("text trace: %w", err)
	}
	return nil
}

func (e *Encoder) Close() error {
	e.open = false
	return nil
}

// Append renders f onto dst. group is the extra-space interval.
func Append(dst []byte, f *core.Frame, flags encoder.Flags, group int) []byte {
	dst = append(dst, '\r', '\n')
	if flags.StartTimestamp {
		dst = appendHex32(dst, f.StartCycles)
		dst = append(dst, '\t')
	}

	switch {
	case f.Raw:
		dst = append(dst, 'U')
		dst = appendHex8(dst, uint8(f.StartCode))
	case f.Modulation == core.ModulationMiller:
		dst = append(dst, "RDR"...)
	case f.Modulation == core.ModulationManchester:
		dst = append(dst, "TAG"...)
	default:
		dst = append(dst, 'U')
		dst = appendHex8(dst, uint8(f.StartCode))
	}
	dst = append(dst, '\t')

	for i, b := range f.Bytes {
		dst = appendHex8(dst, b.Value)
		if f.Raw || b.Partial() {
			continue
		}
		dst = append(dst, ' ')
		if group > 0 && (i+1)%group == 0 {
			dst = append(dst, ' ')
		}
	}

	if flags.EndTimestamp {
		dst = append(dst, '\t')
		dst = appendHex32(dst, f.Duration())
	}
	return dst
}

func appendHex8(dst []byte, v uint8) []byte {
	return append(dst, hexDigits[v>>4], hexDigits[v&0x0F])
}

func appendHex32(dst []byte, v uint32) []byte {
	dst = appendHex8(dst, uint8(v>>24))
	dst = appendHex8(dst, uint8(v>>16))
	dst = appendHex8(dst, uint8(v>>8))
	return appendHex8(dst, uint8(v))
}

package synth

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Step is one frame of a scripted reader/tag exchange.
type Step struct {
	Tag      bool
	Data     []byte
	LastBits int // bits of the last byte, 0 for a full byte
}

// ParseStep parses "rdr:HEX[/BITS]" or "tag:HEX", for example "rdr:26/7".
func ParseStep(s string) (Step, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Step{}, fmt.Errorf("frame %q: want rdr:HEX or tag:HEX", s)
	}
	var st Step
	switch strings.ToLower(kind) {
	case "rdr", "reader":
	case "tag":
		st.Tag = true
	default:
		return Step{}, fmt.Errorf("frame %q: unknown direction %q", s, kind)
	}

	data, bits, hasBits := strings.Cut(rest, "/")
	if hasBits {
		if st.Tag {
			return Step{}, fmt.Errorf("frame %q: tag frames carry full bytes", s)
		}
		n, err := strconv.Atoi(bits)
		if err != nil || n < 1 || n > 7 {
			return Step{}, fmt.Errorf("frame %q: last byte bits must be 1..7", s)
		}
		st.LastBits = n
	}
	b, err := hex.DecodeString(data)
	if err != nil {
		return Step{}, fmt.Errorf("frame %q: %w", s, err)
	}
	if len(b) == 0 {
		return Step{}, fmt.Errorf("frame %q: no data", s)
	}
	st.Data = b
	return st, nil
}

// Script appends the steps with the idle gaps of a real exchange. The field
// idles high around reader frames and the demodulator settles low before a
// tag answer. Frames made of full bytes carry odd parity, short frames don't.
func (b *Builder) Script(steps ...Step) *Builder {
	b.Level(1, 2*SamplesPerBit)
	prevTag := false
	for i, st := range steps {
		if st.Tag {
			if i == 0 || !prevTag {
				b.Level(1, 2*SamplesPerBit).Level(0, 5*SamplesPerBit)
			} else {
				b.Level(0, 3*SamplesPerBit)
			}
			b.TagFrame(st.Data, true)
		} else {
			if prevTag {
				b.Level(0, 3*SamplesPerBit)
			} else if i > 0 {
				b.Level(1, 2*SamplesPerBit)
			}
			b.ReaderFrame(st.Data, st.LastBits, st.LastBits == 0)
		}
		prevTag = st.Tag
	}
	if prevTag {
		return b.Level(0, 4*SamplesPerBit)
	}
	return b.Level(1, 4*SamplesPerBit)
}

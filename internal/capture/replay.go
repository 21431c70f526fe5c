package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/log"
)

// ReplayPeripheral plays back a recorded big-endian u32 window stream as if a
// DMA controller were filling the double buffer. Every CurrentTarget call
// completes one region. At end of stream the controller stalls and Requested
// reports true, so the replay can serve as its own abort signal.
type ReplayPeripheral struct {
	r         *bufio.Reader
	regions   [2]core.SampleWindow
	target    Target
	started   bool
	exhausted bool
	err       error
	count     uint64
}

func NewReplayPeripheral(r io.Reader) *ReplayPeripheral {
	return &ReplayPeripheral{r: bufio.NewReaderSize(r, 64*1024)}
}

func (p *ReplayPeripheral) CurrentTarget() Target {
	if !p.started {
		p.started = true
		return p.target
	}
	if p.exhausted {
		return p.target
	}
	var buf [4]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		p.exhausted = true
		if !errors.Is(err, io.EOF) {
			p.err = err
			log.GetLogger().WithError(err).Warn("replay stream ended early")
		}
		return p.target
	}
	p.regions[p.target] = core.SampleWindow(binary.BigEndian.Uint32(buf[:]))
	p.count++
	p.target = p.target.Other()
	return p.target
}

func (p *ReplayPeripheral) Read(region Target) core.SampleWindow {
	return p.regions[region]
}

// Requested reports whether the stream is exhausted.
func (p *ReplayPeripheral) Requested() bool {
	return p.exhausted
}

// Err returns the read error that ended the stream, nil on a clean EOF.
func (p *ReplayPeripheral) Err() error {
	return p.err
}

// Windows returns how many windows were loaded from the stream.
func (p *ReplayPeripheral) Windows() uint64 {
	return p.count
}

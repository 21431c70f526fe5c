// Package pipeline implements the capture to assembly loop.
package pipeline

import (
	"context"
	"errors"

	"firestige.xyz/nfcsniff/internal/assembler"
	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/log"
)

// Pipeline represents a single-threaded window processing chain: one
// capture.Pipeline feeding one assembler.Assembler.
type Pipeline struct {
	capture   *capture.Pipeline
	assembler *assembler.Assembler
	handler   assembler.FrameHandler
	metrics   *Metrics
	logger    log.Logger
	stop      capture.Flag
}

// Config contains pipeline configuration.
type Config struct {
	Peripheral capture.Peripheral
	Abort      capture.AbortSignal
	Clock      clock.Clock
	Handler    assembler.FrameHandler
	Options    assembler.Options
}

// New creates a new pipeline. The capture side latches the current DMA
// region immediately.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewHost()
	}
	p := &Pipeline{
		handler: cfg.Handler,
		metrics: NewMetrics(),
		logger:  log.GetLogger().WithField("component", "pipeline"),
	}
	p.capture = capture.New(cfg.Peripheral, capture.Any{cfg.Abort, &p.stop})
	p.assembler = assembler.New(cfg.Clock, assembler.FrameHandlerFunc(p.handleFrame), cfg.Options)
	return p
}

// Run pulls windows until the abort signal is raised or ctx is done, then
// closes any open frame. Cancellation is only observed at window boundaries.
func (p *Pipeline) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		p.stop.Raise()
	}
	release := context.AfterFunc(ctx, p.stop.Raise)
	defer release()
	p.logger.Debug("pipeline running")

	for {
		w, err := p.capture.Next()
		if errors.Is(err, core.ErrAbort) {
			break
		}
		if err != nil {
			p.finish()
			return err
		}
		p.metrics.Windows.Add(1)
		p.assembler.Push(w)
	}

	p.finish()
	p.logger.WithField("windows", p.metrics.Windows.Load()).Debug("pipeline stopped")
	return nil
}

func (p *Pipeline) finish() {
	p.assembler.Finish()
	p.syncAssemblerStats()
	p.metrics.Spins.Store(p.capture.Stats().Spins.Load())
}

// handleFrame counts the frame and forwards it.
func (p *Pipeline) handleFrame(f *core.Frame) error {
	p.metrics.Frames.Add(1)
	p.metrics.Bytes.Add(uint64(len(f.Bytes)))
	p.metrics.frameCounter(f.Modulation).Add(1)
	p.syncAssemblerStats()

	if p.handler == nil {
		return nil
	}
	if err := p.handler.HandleFrame(f); err != nil {
		p.metrics.HandlerErrors.Add(1)
		return err
	}
	return nil
}

func (p *Pipeline) syncAssemblerStats() {
	st := p.assembler.Stats()
	p.metrics.UnknownStarts.Store(st.UnknownStarts)
	p.metrics.Turnarounds.Store(st.Turnarounds)
	p.metrics.EmptyFrames.Store(st.EmptyFrames)
}

// Metrics exposes the live counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}

// Stats represents pipeline statistics.
type Stats struct {
	Windows          uint64
	Spins            uint64
	Frames           uint64
	MillerFrames     uint64
	ManchesterFrames uint64
	UnknownFrames    uint64
	RawFrames        uint64
	EmptyFrames      uint64
	Bytes            uint64
	UnknownStarts    uint64
	Turnarounds      uint64
	HandlerErrors    uint64
}

package pipeline

import (
	"sync"
	"sync/atomic"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/metrics"
)

// Metrics contains per-pipeline counters. Fields are atomics so that a
// metrics collector may read them while the capture loop runs.
type Metrics struct {
	Windows          atomic.Uint64
	Spins            atomic.Uint64
	Frames           atomic.Uint64
	MillerFrames     atomic.Uint64
	ManchesterFrames atomic.Uint64
	UnknownFrames    atomic.Uint64
	RawFrames        atomic.Uint64
	EmptyFrames      atomic.Uint64
	Bytes            atomic.Uint64
	UnknownStarts    atomic.Uint64
	Turnarounds      atomic.Uint64
	HandlerErrors    atomic.Uint64

	mu        sync.Mutex
	published Stats
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) frameCounter(mod core.Modulation) *atomic.Uint64 {
	switch mod {
	case core.ModulationMiller:
		return &m.MillerFrames
	case core.ModulationManchester:
		return &m.ManchesterFrames
	case core.ModulationRaw848k:
		return &m.RawFrames
	}
	return &m.UnknownFrames
}

// Snapshot loads every counter.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Windows:          m.Windows.Load(),
		Spins:            m.Spins.Load(),
		Frames:           m.Frames.Load(),
		MillerFrames:     m.MillerFrames.Load(),
		ManchesterFrames: m.ManchesterFrames.Load(),
		UnknownFrames:    m.UnknownFrames.Load(),
		RawFrames:        m.RawFrames.Load(),
		EmptyFrames:      m.EmptyFrames.Load(),
		Bytes:            m.Bytes.Load(),
		UnknownStarts:    m.UnknownStarts.Load(),
		Turnarounds:      m.Turnarounds.Load(),
		HandlerErrors:    m.HandlerErrors.Load(),
	}
}

// Publish adds the counter increments since the previous Publish to the
// Prometheus collectors. It may be called from any goroutine.
func (m *Metrics) Publish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.Snapshot()
	prev := m.published
	m.published = cur

	metrics.CaptureWindowsTotal.Add(float64(cur.Windows - prev.Windows))
	metrics.CaptureSpinsTotal.Add(float64(cur.Spins - prev.Spins))
	metrics.FramesTotal.WithLabelValues(core.ModulationMiller.String()).Add(float64(cur.MillerFrames - prev.MillerFrames))
	metrics.FramesTotal.WithLabelValues(core.ModulationManchester.String()).Add(float64(cur.ManchesterFrames - prev.ManchesterFrames))
	metrics.FramesTotal.WithLabelValues(core.ModulationUnknown.String()).Add(float64(cur.UnknownFrames - prev.UnknownFrames))
	metrics.FramesTotal.WithLabelValues(core.ModulationRaw848k.String()).Add(float64(cur.RawFrames - prev.RawFrames))
	metrics.EmptyFramesTotal.Add(float64(cur.EmptyFrames - prev.EmptyFrames))
	metrics.BytesTotal.Add(float64(cur.Bytes - prev.Bytes))
	metrics.UnknownSymbolsTotal.Add(float64(cur.UnknownStarts - prev.UnknownStarts))
	metrics.TurnaroundsTotal.Add(float64(cur.Turnarounds - prev.Turnarounds))
	metrics.EncoderErrorsTotal.Add(float64(cur.HandlerErrors - prev.HandlerErrors))
}

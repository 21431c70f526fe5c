// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureWindowsTotal counts sample windows drained from the DMA double buffer
	CaptureWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_capture_windows_total",
			Help: "Total number of sample windows captured",
		},
	)

	// CaptureSpinsTotal counts busy-wait polls of the DMA target register
	CaptureSpinsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_capture_spins_total",
			Help: "Total number of polls spent waiting for a DMA region switch",
		},
	)

	// FramesTotal counts surfaced frames by modulation
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfcsniff_frames_total",
			Help: "Total number of assembled frames",
		},
		[]string{"modulation"},
	)

	// EmptyFramesTotal counts frames closed without any byte
	EmptyFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_empty_frames_total",
			Help: "Total number of frames dropped because they carried no byte",
		},
	)

	// BytesTotal counts decoded bytes, partial bytes included
	BytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_bytes_total",
			Help: "Total number of decoded bytes",
		},
	)

	// DroppedBytesTotal counts encoder output refused by a full session buffer
	DroppedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_dropped_bytes_total",
			Help: "Total number of output bytes dropped at buffer capacity",
		},
	)

	// UnknownSymbolsTotal counts start symbols matching no line code
	UnknownSymbolsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_unknown_symbols_total",
			Help: "Total number of unknown protocol start symbols",
		},
	)

	// TurnaroundsTotal counts reader frames recovered after a tag answer
	TurnaroundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_turnarounds_total",
			Help: "Total number of reader frames resynchronized after a tag frame",
		},
	)

	// EncoderErrorsTotal counts frames the active encoder failed to write
	EncoderErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfcsniff_encoder_errors_total",
			Help: "Total number of encoder errors",
		},
	)

	// StorageErrorsTotal counts persistence failures by stage
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfcsniff_storage_errors_total",
			Help: "Total number of capture persistence failures",
		},
		[]string{"stage"},
	)

	// SessionState tracks the session controller state
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nfcsniff_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)
)

// Storage error stages
const (
	StageMount  = "mount"
	StageCreate = "create"
	StageWrite  = "write"
	StageClose  = "close"
)

// Package session implements the sniff session controller: front-end set
// up, the real-time capture loop, and persistence of the result.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"firestige.xyz/nfcsniff/internal/assembler"
	"firestige.xyz/nfcsniff/internal/buffer"
	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
	"firestige.xyz/nfcsniff/internal/hw"
	"firestige.xyz/nfcsniff/internal/log"
	"firestige.xyz/nfcsniff/internal/metrics"
	"firestige.xyz/nfcsniff/internal/pipeline"
	"firestige.xyz/nfcsniff/internal/storage"
)

// State is the controller state.
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateCapturing
	StateFinishing
)

var stateNames = [...]string{"idle", "configuring", "capturing", "finishing"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Encoders that stream their output instead of buffering it for storage.
const relayEncoder = "relay"

// Config is fixed for the lifetime of a session.
type Config struct {
	Link            core.Link
	Encoder         string
	EncoderOptions  map[string]interface{}
	Flags           encoder.Flags
	RelayOverSerial bool
	BufferSize      int
	// FilePattern names the persisted capture, without extension.
	FilePattern string
}

// Deps are the collaborators a session drives. Peripheral is required; the
// others fall back to host implementations.
type Deps struct {
	Peripheral capture.Peripheral
	Abort      capture.AbortSignal
	FrontEnd   hw.FrontEnd
	RealTime   hw.RealTime
	Clock      clock.Clock
	Storage    storage.Storage
	Indicator  hw.Indicator
	Console    io.Writer
	Relay      io.Writer
	Registry   *encoder.Registry
}

// Result summarizes a finished session.
type Result struct {
	Encoder      string
	Stats        pipeline.Stats
	Buffered     int
	DroppedBytes uint64
	File         string
	Persisted    bool
	PersistErr   error
	Duration     time.Duration
}

// Session owns one capture configuration and its output buffer.
type Session struct {
	cfg     Config
	deps    Deps
	buf     *buffer.Buffer
	state   atomic.Int32
	running atomic.Bool
	metrics atomic.Pointer[pipeline.Metrics]
	logger  log.Logger
}

// New validates cfg and fills in default collaborators.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Peripheral == nil {
		return nil, fmt.Errorf("%w: no capture peripheral", core.ErrConfigInvalid)
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive", core.ErrConfigInvalid)
	}
	if cfg.Link == core.LinkISO14443B && cfg.Encoder != relayEncoder {
		return nil, fmt.Errorf("%w: %s is only relayed", core.ErrConfigInvalid, cfg.Link)
	}
	if cfg.RelayOverSerial && deps.Relay == nil {
		return nil, fmt.Errorf("%w: relay over serial without a relay link", core.ErrConfigInvalid)
	}
	if cfg.FilePattern == "" {
		cfg.FilePattern = "nfc_sniff_" + storage.SequenceVerb
	}

	if deps.FrontEnd == nil {
		deps.FrontEnd = &hw.NopFrontEnd{}
	}
	if deps.RealTime == nil {
		deps.RealTime = &hw.HostRealTime{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewHost()
	}
	if deps.Indicator == nil {
		deps.Indicator = hw.LogIndicator{}
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}

	return &Session{
		cfg:    cfg,
		deps:   deps,
		buf:    buffer.New(cfg.BufferSize),
		logger: log.GetLogger().WithField("component", "session"),
	}, nil
}

// State returns the current controller state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Metrics returns the counters of the running capture, nil between runs.
func (s *Session) Metrics() *pipeline.Metrics {
	return s.metrics.Load()
}

// Buffer exposes the session output buffer.
func (s *Session) Buffer() *buffer.Buffer {
	return s.buf
}

func (s *Session) setState(st State) {
	prev := s.State()
	s.state.Store(int32(st))
	metrics.SessionState.WithLabelValues(prev.String()).Set(0)
	metrics.SessionState.WithLabelValues(st.String()).Set(1)
	s.logger.Debugf("session %s -> %s", prev, st)
}

// Run performs one capture until the abort signal is raised or ctx is done.
// Only configuration and front-end failures are returned; storage failures
// are reported in the Result and through the indicator.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, core.ErrSessionRunning
	}
	defer s.running.Store(false)
	defer s.setState(StateIdle)

	start := time.Now()
	s.setState(StateConfiguring)
	s.buf.Reset()

	enc, err := s.registry().Create(s.cfg.Encoder, s.cfg.EncoderOptions)
	if err != nil {
		return nil, err
	}
	if err := s.configureFrontEnd(); err != nil {
		s.shutdownFrontEnd()
		return nil, err
	}
	if err := enc.Open(encoder.Target{W: s.target(), Flags: s.cfg.Flags}); err != nil {
		s.shutdownFrontEnd()
		return nil, fmt.Errorf("open encoder %s: %w", enc.Name(), err)
	}
	// A press latched before the capture must not end it.
	if r, ok := s.deps.Abort.(capture.Resetter); ok {
		r.Reset()
	}

	p := pipeline.New(pipeline.Config{
		Peripheral: s.deps.Peripheral,
		Abort:      s.deps.Abort,
		Clock:      s.deps.Clock,
		Handler:    enc,
		Options: assembler.Options{
			Parity: s.cfg.Flags.Parity,
			Raw:    s.cfg.Link == core.LinkISO14443B,
		},
	})
	s.metrics.Store(p.Metrics())
	defer s.metrics.Store(nil)

	s.logger.WithField("link", string(s.cfg.Link)).WithField("encoder", enc.Name()).Info("capture started")
	s.setState(StateCapturing)
	captureErr := s.capture(ctx, p)

	s.setState(StateFinishing)
	if err := multierr.Append(enc.Close(), s.deps.FrontEnd.DisableRF()); err != nil {
		s.logger.WithError(err).Warn("session teardown incomplete")
	}

	p.Metrics().Publish()
	metrics.DroppedBytesTotal.Add(float64(s.buf.Dropped()))

	res := &Result{
		Encoder:      enc.Name(),
		Stats:        p.Stats(),
		Buffered:     s.buf.Len(),
		DroppedBytes: s.buf.Dropped(),
	}
	if captureErr != nil {
		res.Duration = time.Since(start)
		return res, captureErr
	}

	if !s.live() {
		s.persist(res)
	}
	res.Duration = time.Since(start)

	s.logger.WithField("frames", res.Stats.Frames).
		WithField("bytes", res.Stats.Bytes).
		WithField("dropped", res.DroppedBytes).
		Info("capture finished")
	return res, nil
}

// capture runs the pipeline inside the real-time section.
func (s *Session) capture(ctx context.Context, p *pipeline.Pipeline) error {
	s.deps.RealTime.Enter()
	defer s.deps.RealTime.Exit()
	return p.Run(ctx)
}

func (s *Session) configureFrontEnd() error {
	fe := s.deps.FrontEnd
	if err := fe.Reset(); err != nil {
		return fmt.Errorf("%w: reset: %v", core.ErrFrontEndFailure, err)
	}
	if err := fe.Configure(s.cfg.Link); err != nil {
		return fmt.Errorf("%w: configure %s: %v", core.ErrFrontEndFailure, s.cfg.Link, err)
	}
	if err := fe.EnableRF(); err != nil {
		return fmt.Errorf("%w: enable rf: %v", core.ErrFrontEndFailure, err)
	}
	return nil
}

// shutdownFrontEnd leaves the front end reset with the field off after a
// failed set up.
func (s *Session) shutdownFrontEnd() {
	fe := s.deps.FrontEnd
	if err := multierr.Append(fe.DisableRF(), fe.Reset()); err != nil {
		s.logger.WithError(err).Warn("front-end shutdown incomplete")
	}
}

// live reports whether the output streams out frame by frame instead of
// being buffered for storage.
func (s *Session) live() bool {
	return s.cfg.RelayOverSerial || s.cfg.Encoder == relayEncoder
}

func (s *Session) target() io.Writer {
	switch {
	case s.cfg.RelayOverSerial:
		return s.deps.Relay
	case s.cfg.Encoder == relayEncoder:
		return s.deps.Console
	}
	return s.buf
}

func (s *Session) registry() *encoder.Registry {
	if s.deps.Registry != nil {
		return s.deps.Registry
	}
	return encoder.Default()
}

// persist writes the buffer to storage. On failure the text trace is dumped
// to the console and the failure pattern is shown. An empty buffer is not
// written.
func (s *Session) persist(res *Result) {
	if s.buf.Len() == 0 {
		res.PersistErr = core.ErrNoData
		s.logger.Warn("nothing captured, no file written")
		s.deps.Indicator.Blink(hw.PatternFailure)
		return
	}
	file, stage, err := s.store()
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(stage).Inc()
		res.PersistErr = err
		s.logger.WithError(err).WithField("stage", stage).Error("capture not persisted")
		if s.cfg.Encoder == "text" {
			if _, werr := s.deps.Console.Write(s.buf.Bytes()); werr != nil {
				s.logger.WithError(werr).Warn("console dump failed")
			}
		}
		s.deps.Indicator.Blink(hw.PatternFailure)
		return
	}
	res.File = file
	res.Persisted = true
	s.logger.WithField("file", file).WithField("bytes", s.buf.Len()).Info("capture persisted")
	s.deps.Indicator.Blink(hw.PatternSuccess)
}

func (s *Session) store() (file, stage string, err error) {
	st := s.deps.Storage
	if st == nil {
		return "", metrics.StageMount, fmt.Errorf("%w: no storage configured", core.ErrStorageUnavailable)
	}
	if err := st.Mount(); err != nil {
		return "", metrics.StageMount, err
	}
	h, err := st.CreateFile(s.cfg.FilePattern + Extension(s.cfg.Encoder))
	if err != nil {
		return "", metrics.StageCreate, err
	}
	if err := st.Append(h, s.buf.Bytes()); err != nil {
		return h.Name(), metrics.StageWrite, multierr.Append(err, st.Close(h))
	}
	if err := st.Close(h); err != nil {
		return h.Name(), metrics.StageClose, err
	}
	return h.Name(), "", nil
}

// Extension returns the file extension used when persisting an encoder's
// output.
func Extension(encoderName string) string {
	switch encoderName {
	case "text":
		return ".txt"
	case "pcap":
		return ".pcap"
	}
	return ".bin"
}


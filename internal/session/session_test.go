package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
	_ "firestige.xyz/nfcsniff/internal/encoder/builtin"
	"firestige.xyz/nfcsniff/internal/encoder/relay"
	"firestige.xyz/nfcsniff/internal/hw"
	"firestige.xyz/nfcsniff/internal/storage"
	"firestige.xyz/nfcsniff/internal/synth"
)

// MockFrontEnd records calls and fails on demand.
type MockFrontEnd struct {
	calls        []string
	configureErr error
	enableErr    error
}

func (m *MockFrontEnd) Reset() error {
	m.calls = append(m.calls, "reset")
	return nil
}

func (m *MockFrontEnd) Configure(l core.Link) error {
	m.calls = append(m.calls, "configure "+string(l))
	return m.configureErr
}

func (m *MockFrontEnd) EnableRF() error {
	m.calls = append(m.calls, "rf on")
	return m.enableErr
}

func (m *MockFrontEnd) DisableRF() error {
	m.calls = append(m.calls, "rf off")
	return nil
}

// MockRealTime counts section entries and exits.
type MockRealTime struct {
	mu          sync.Mutex
	enter, exit int
}

func (m *MockRealTime) Enter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enter++
}

func (m *MockRealTime) Exit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exit++
}

// MockIndicator is a mock implementation of hw.Indicator.
type MockIndicator struct {
	mock.Mock
}

func (m *MockIndicator) Blink(p hw.Pattern) {
	m.Called(p)
}

type fixture struct {
	fe      *MockFrontEnd
	rt      *MockRealTime
	ind     *MockIndicator
	fs      afero.Fs
	console *bytes.Buffer
	relay   *bytes.Buffer
}

func newFixture() *fixture {
	ind := &MockIndicator{}
	ind.On("Blink", mock.Anything).Return()
	return &fixture{
		fe:      &MockFrontEnd{},
		rt:      &MockRealTime{},
		ind:     ind,
		fs:      afero.NewMemMapFs(),
		console: &bytes.Buffer{},
		relay:   &bytes.Buffer{},
	}
}

func (f *fixture) deps(t *testing.T, b *synth.Builder) Deps {
	t.Helper()
	var stream bytes.Buffer
	_, err := b.WriteTo(&stream)
	require.NoError(t, err)
	periph := capture.NewReplayPeripheral(&stream)

	return Deps{
		Peripheral: periph,
		Abort:      periph,
		FrontEnd:   f.fe,
		RealTime:   f.rt,
		Clock:      clock.NewFake(1000, 100),
		Storage:    storage.NewDir("/captures", 0, storage.WithFs(f.fs)),
		Indicator:  f.ind,
		Console:    f.console,
		Relay:      f.relay,
	}
}

func reqa() *synth.Builder {
	return synth.NewBuilder().
		Level(1, 70).
		ReaderFrame([]byte{0x26}, 7, false).
		Level(1, 128)
}

func exchange() *synth.Builder {
	return synth.NewBuilder().
		Level(1, 45).
		ReaderFrame([]byte{0x26}, 7, false).
		Level(1, 64).
		Level(0, 160).
		TagFrame([]byte{0x44, 0x00}, true).
		Level(0, 100).
		ReaderFrame([]byte{0x93, 0x20}, 0, true).
		Level(1, 128)
}

func textConfig() Config {
	return Config{
		Link:       core.LinkISO14443A,
		Encoder:    "text",
		Flags:      encoder.Flags{StartTimestamp: true, EndTimestamp: true},
		BufferSize: 4096,
	}
}

func TestReqaTextTrace(t *testing.T) {
	f := newFixture()
	s, err := New(textConfig(), f.deps(t, reqa()))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.Stats.Frames)
	require.True(t, res.Persisted)
	assert.Equal(t, "/captures/nfc_sniff_0.txt", res.File)

	got, err := afero.ReadFile(f.fs, res.File)
	require.NoError(t, err)
	assert.Equal(t, "\r\n000003E8\tRDR\t26 \t00000064", string(got))
	assert.Equal(t, 1, strings.Count(string(got), "RDR"))

	assert.Equal(t, []string{"reset", "configure iso14443a", "rf on", "rf off"}, f.fe.calls)
	assert.Equal(t, 1, f.rt.enter)
	assert.Equal(t, 1, f.rt.exit)
	f.ind.AssertNumberOfCalls(t, "Blink", 1)
	f.ind.AssertCalled(t, "Blink", hw.PatternSuccess)
	assert.Empty(t, f.console.String())
	assert.Equal(t, StateIdle, s.State())
}

func TestStorageFailureDumpsTraceToConsole(t *testing.T) {
	f := newFixture()
	deps := f.deps(t, reqa())
	deps.Storage = storage.NewDir("/captures", 0, storage.WithFs(afero.NewReadOnlyFs(f.fs)))

	cfg := textConfig()
	cfg.Flags = encoder.Flags{}
	s, err := New(cfg, deps)
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err, "storage failures are not returned")
	assert.False(t, res.Persisted)
	assert.ErrorIs(t, res.PersistErr, core.ErrStorageUnavailable)
	assert.Equal(t, "\r\nRDR\t26 ", f.console.String())
	f.ind.AssertNumberOfCalls(t, "Blink", 1)
	f.ind.AssertCalled(t, "Blink", hw.PatternFailure)
}

func TestMissingStorageFallsBack(t *testing.T) {
	f := newFixture()
	deps := f.deps(t, reqa())
	deps.Storage = nil

	s, err := New(textConfig(), deps)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.PersistErr, core.ErrStorageUnavailable)
	assert.Contains(t, f.console.String(), "RDR\t26")
}

func TestBufferClampsAtCapacity(t *testing.T) {
	// reference trace with a large buffer
	f := newFixture()
	cfg := textConfig()
	s, err := New(cfg, f.deps(t, exchange()))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	full, err := afero.ReadFile(f.fs, res.File)
	require.NoError(t, err)
	require.Greater(t, len(full), 40)

	f = newFixture()
	cfg.BufferSize = 40
	s, err = New(cfg, f.deps(t, exchange()))
	require.NoError(t, err)
	res, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, res.Buffered)
	assert.Equal(t, uint64(len(full)-40), res.DroppedBytes)
	assert.Equal(t, uint64(3), res.Stats.Frames, "capture continues when the buffer is full")
	assert.NotZero(t, res.Stats.HandlerErrors)

	clamped, err := afero.ReadFile(f.fs, res.File)
	require.NoError(t, err)
	assert.Equal(t, full[:40], clamped)
}

func TestPcapPersistence(t *testing.T) {
	f := newFixture()
	cfg := textConfig()
	cfg.Encoder = "pcap"
	s, err := New(cfg, f.deps(t, exchange()))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/captures/nfc_sniff_0.pcap", res.File)

	data, err := afero.ReadFile(f.fs, res.File)
	require.NoError(t, err)
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	var dirs []byte
	for {
		pkt, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		dirs = append(dirs, pkt[1])
	}
	assert.Equal(t, []byte{0xB0, 0xB1, 0xB0}, dirs)
}

func TestRelayOverSerial(t *testing.T) {
	f := newFixture()
	cfg := textConfig()
	cfg.Encoder = "relay"
	cfg.RelayOverSerial = true
	cfg.Flags.Parity = true
	s, err := New(cfg, f.deps(t, exchange()))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Zero(t, res.Buffered)
	f.ind.AssertNotCalled(t, "Blink", mock.Anything)
	assert.Empty(t, f.console.String())

	var mods []core.Modulation
	p := f.relay.Bytes()
	for len(p) > 0 {
		h, err := relay.ParseHeader(p)
		require.NoError(t, err)
		mods = append(mods, h.Modulation)
		p = p[h.RecordLen():]
	}
	assert.Equal(t, []core.Modulation{core.ModulationMiller, core.ModulationManchester, core.ModulationMiller}, mods)

	exists, err := afero.DirExists(f.fs, "/captures")
	require.NoError(t, err)
	assert.False(t, exists, "storage is not mounted")
}

func TestTextRelayedOverSerial(t *testing.T) {
	f := newFixture()
	cfg := textConfig()
	cfg.RelayOverSerial = true
	s, err := New(cfg, f.deps(t, reqa()))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\r\n000003E8\tRDR\t26 \t00000064", f.relay.String())
	assert.False(t, res.Persisted)
	assert.NoError(t, res.PersistErr)
	assert.Zero(t, res.Buffered)
	assert.Empty(t, f.console.String())
	f.ind.AssertNotCalled(t, "Blink", mock.Anything)

	exists, err := afero.DirExists(f.fs, "/captures")
	require.NoError(t, err)
	assert.False(t, exists, "relayed sessions are not persisted")
}

func TestEmptyCaptureIsNotPersisted(t *testing.T) {
	f := newFixture()
	s, err := New(textConfig(), f.deps(t, synth.NewBuilder().Level(1, 256)))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Frames)
	assert.False(t, res.Persisted)
	assert.ErrorIs(t, res.PersistErr, core.ErrNoData)
	f.ind.AssertNumberOfCalls(t, "Blink", 1)
	f.ind.AssertCalled(t, "Blink", hw.PatternFailure)

	exists, err := afero.DirExists(f.fs, "/captures")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLatchedAbortClearedBeforeCapture(t *testing.T) {
	f := newFixture()
	deps := f.deps(t, reqa())
	var stop capture.Flag
	stop.Raise()
	deps.Abort = capture.Any{deps.Abort, &stop}

	s, err := New(textConfig(), deps)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Stats.Frames)
	assert.True(t, res.Persisted)
}

func TestLinkBRelaysRawCodes(t *testing.T) {
	f := newFixture()
	cfg := Config{Link: core.LinkISO14443B, Encoder: "relay", BufferSize: 16}
	b := synth.NewBuilder().
		Level(1, 64).
		Raw(0x007FFFFF, 0xFFFF007F, 0x007FFFFF).
		Level(1, 96)
	s, err := New(cfg, f.deps(t, b))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{relay.OptRaw, 3, 0, 3, 0x3F, 0xF3, 0x3F}, f.console.Bytes())
	assert.Equal(t, "configure iso14443b", f.fe.calls[1])
}

func TestFrontEndFailure(t *testing.T) {
	f := newFixture()
	f.fe.configureErr = errors.New("spi timeout")
	s, err := New(textConfig(), f.deps(t, reqa()))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrFrontEndFailure)
	assert.Zero(t, f.rt.enter)
	assert.Equal(t, StateIdle, s.State())
}

func TestEnableRFFailureShutsFrontEndDown(t *testing.T) {
	f := newFixture()
	f.fe.enableErr = errors.New("field detector stuck")
	s, err := New(textConfig(), f.deps(t, reqa()))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrFrontEndFailure)
	assert.Equal(t, []string{"reset", "configure iso14443a", "rf on", "rf off", "reset"}, f.fe.calls)
	assert.Zero(t, f.rt.enter)
}

func TestUnknownEncoder(t *testing.T) {
	f := newFixture()
	cfg := textConfig()
	cfg.Encoder = "hex"
	s, err := New(cfg, f.deps(t, reqa()))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrEncoderNotFound)
	assert.Empty(t, f.fe.calls)
}

// stalled never switches DMA regions.
type stalled struct{}

func (stalled) CurrentTarget() capture.Target         { return capture.TargetA }
func (stalled) Read(capture.Target) core.SampleWindow { return 0 }

func TestRunIsExclusiveAndCancellable(t *testing.T) {
	f := newFixture()
	deps := f.deps(t, reqa())
	deps.Peripheral = stalled{}
	deps.Abort = nil
	s, err := New(textConfig(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == StateCapturing }, time.Second, time.Millisecond)
	assert.NotNil(t, s.Metrics())
	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrSessionRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Metrics())
	f.rt.mu.Lock()
	assert.Equal(t, f.rt.enter, f.rt.exit)
	f.rt.mu.Unlock()
}

func TestNewValidation(t *testing.T) {
	f := newFixture()
	deps := f.deps(t, reqa())

	tests := []struct {
		name   string
		mutate func(*Config, *Deps)
	}{
		{"no peripheral", func(c *Config, d *Deps) { d.Peripheral = nil }},
		{"no buffer", func(c *Config, d *Deps) { c.BufferSize = 0 }},
		{"link b as text", func(c *Config, d *Deps) { c.Link = core.LinkISO14443B }},
		{"serial without link", func(c *Config, d *Deps) {
			c.Encoder = "relay"
			c.RelayOverSerial = true
			d.Relay = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, d := textConfig(), deps
			tt.mutate(&cfg, &d)
			_, err := New(cfg, d)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".txt", Extension("text"))
	assert.Equal(t, ".pcap", Extension("pcap"))
	assert.Equal(t, ".bin", Extension("custom"))
}

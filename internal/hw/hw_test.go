package hw

import (
	"errors"
	"io"
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/core"
)

func TestNopFrontEnd(t *testing.T) {
	var fe NopFrontEnd
	require.NoError(t, fe.Reset())
	require.NoError(t, fe.Configure(core.LinkISO14443A))
	require.NoError(t, fe.EnableRF())

	link, rf := fe.State()
	assert.Equal(t, core.LinkISO14443A, link)
	assert.True(t, rf)

	require.NoError(t, fe.DisableRF())
	_, rf = fe.State()
	assert.False(t, rf)
}

func TestHostRealTimeRestoresGC(t *testing.T) {
	prev := debug.SetGCPercent(80)
	defer debug.SetGCPercent(prev)

	var rt HostRealTime
	rt.Enter()
	assert.True(t, rt.Active())
	rt.Enter() // nested enter is ignored
	assert.Equal(t, -1, debug.SetGCPercent(-1))

	rt.Exit()
	assert.False(t, rt.Active())
	assert.Equal(t, 80, debug.SetGCPercent(80))

	rt.Exit() // exit without enter is ignored
	assert.Equal(t, 80, debug.SetGCPercent(80))
}

func TestButtonLatchesPress(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO26"}
	b, err := NewButton(pin)
	require.NoError(t, err)
	assert.Equal(t, gpio.PullUp, pin.P)
	require.NoError(t, pin.Out(gpio.High))
	assert.False(t, b.Requested())

	require.NoError(t, pin.Out(gpio.Low))
	assert.True(t, b.Requested())

	require.NoError(t, pin.Out(gpio.High))
	assert.True(t, b.Requested(), "press is latched")

	// sessions clear the latch through their abort set
	aborts := capture.Any{b}
	aborts.Reset()
	assert.False(t, b.Requested())
}

// countingPin records output levels.
type countingPin struct {
	gpiotest.Pin
	levels []gpio.Level
}

func (p *countingPin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.Pin.Out(l)
}

func TestGPIOIndicatorBlinks(t *testing.T) {
	ok := &countingPin{Pin: gpiotest.Pin{N: "GPIO5"}}
	fail := &countingPin{Pin: gpiotest.Pin{N: "GPIO6"}}

	var slept time.Duration
	ind := NewGPIOIndicator(ok, fail)
	ind.sleep = func(d time.Duration) { slept += d }

	ind.Blink(PatternFailure)
	assert.Empty(t, ok.levels)
	require.Len(t, fail.levels, 2*DefaultBlinks)
	for i, l := range fail.levels {
		assert.Equal(t, i%2 == 0, l == gpio.High, "level %d", i)
	}
	assert.Equal(t, 2*DefaultBlinks*DefaultBlinkPeriod, slept)

	ind.Blink(PatternSuccess)
	assert.Len(t, ok.levels, 2*DefaultBlinks)
	assert.Equal(t, gpio.Low, ok.Read())
}

func TestWatchInputRaisesOnFirstByte(t *testing.T) {
	r, w := io.Pipe()
	var flag capture.Flag
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		WatchInput(r, &flag, done)
		close(finished)
	}()
	_, err := w.Write([]byte{0x00})
	require.NoError(t, err)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("watcher did not return")
	}
	assert.True(t, flag.Requested())
}

func TestWatchInputStopsOnError(t *testing.T) {
	r, w := io.Pipe()
	require.NoError(t, w.CloseWithError(errors.New("port gone")))

	var flag capture.Flag
	WatchInput(r, &flag, make(chan struct{}))
	assert.False(t, flag.Requested())
}

func TestWatchInputStopsOnDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	var flag capture.Flag
	WatchInput(eofReader{}, &flag, done)
	assert.False(t, flag.Requested())
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

package hw

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"firestige.xyz/nfcsniff/internal/log"
)

// DefaultBaud is the relay link rate.
const DefaultBaud = 8_400_000

// OpenSerial opens the relay serial port.
func OpenSerial(name string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	c := &serial.Config{Name: name, Baud: baud, ReadTimeout: 100 * time.Millisecond}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	log.GetLogger().WithField("port", name).WithField("baud", baud).Info("relay link opened")
	return p, nil
}

// Raiser is raised by WatchInput.
type Raiser interface {
	Raise()
}

// WatchInput raises r when the first byte arrives on in, which lets the
// relay host stop a capture. It returns when a byte was read, in fails or
// done is closed. io.EOF is what a serial port returns on a read timeout and
// is retried.
func WatchInput(in io.Reader, r Raiser, done <-chan struct{}) {
	var b [1]byte
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := in.Read(b[:])
		if n > 0 {
			log.GetLogger().WithField("byte", fmt.Sprintf("%02X", b[0])).Info("stop requested on relay link")
			r.Raise()
			return
		}
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			log.GetLogger().WithError(err).Debug("relay link read stopped")
			return
		}
	}
}

package hw

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Button is an active low push button with pull-up, used as the capture
// abort signal. A press is latched until Reset.
type Button struct {
	pin     gpio.PinIn
	pressed atomic.Bool
}

func NewButton(pin gpio.PinIn) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("button %s: %w", pin.Name(), err)
	}
	return &Button{pin: pin}, nil
}

func (b *Button) Requested() bool {
	if b.pressed.Load() {
		return true
	}
	if b.pin.Read() == gpio.Low {
		b.pressed.Store(true)
		return true
	}
	return false
}

// Reset clears a latched press.
func (b *Button) Reset() {
	b.pressed.Store(false)
}

// GPIO groups the lines of an SBC host.
type GPIO struct {
	Button    *Button
	Indicator *GPIOIndicator
}

// OpenGPIO initializes the periph.io host drivers and resolves the named
// lines, for example "GPIO26".
func OpenGPIO(abortPin, successLED, failureLED string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	btnPin, err := byName(abortPin)
	if err != nil {
		return nil, err
	}
	okPin, err := byName(successLED)
	if err != nil {
		return nil, err
	}
	failPin, err := byName(failureLED)
	if err != nil {
		return nil, err
	}

	btn, err := NewButton(btnPin)
	if err != nil {
		return nil, err
	}
	for _, p := range []gpio.PinIO{okPin, failPin} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("led %s: %w", p.Name(), err)
		}
	}
	return &GPIO{Button: btn, Indicator: NewGPIOIndicator(okPin, failPin)}, nil
}

func byName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio line %q not found", name)
	}
	return p, nil
}

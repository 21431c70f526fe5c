package hw

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"firestige.xyz/nfcsniff/internal/log"
)

// Pattern is a status signal shown after a session.
type Pattern int

const (
	PatternSuccess Pattern = iota
	PatternFailure
)

func (p Pattern) String() string {
	if p == PatternSuccess {
		return "success"
	}
	return "failure"
}

// Indicator shows a status pattern to the operator.
type Indicator interface {
	Blink(p Pattern)
}

// LogIndicator reports patterns in the log.
type LogIndicator struct{}

func (LogIndicator) Blink(p Pattern) {
	log.GetLogger().WithField("pattern", p.String()).Info("status indicator")
}

const (
	DefaultBlinks      = 4
	DefaultBlinkPeriod = 50 * time.Millisecond
)

// GPIOIndicator blinks the green LED on success and the red LED on failure.
type GPIOIndicator struct {
	success gpio.PinOut
	failure gpio.PinOut
	blinks  int
	period  time.Duration
	sleep   func(time.Duration)
}

func NewGPIOIndicator(success, failure gpio.PinOut) *GPIOIndicator {
	return &GPIOIndicator{
		success: success,
		failure: failure,
		blinks:  DefaultBlinks,
		period:  DefaultBlinkPeriod,
		sleep:   time.Sleep,
	}
}

func (g *GPIOIndicator) Blink(p Pattern) {
	pin := g.success
	if p == PatternFailure {
		pin = g.failure
	}
	if pin == nil {
		return
	}
	for i := 0; i < g.blinks; i++ {
		if err := pin.Out(gpio.High); err != nil {
			log.GetLogger().WithError(err).WithField("pin", pin.Name()).Warn("led write failed")
			return
		}
		g.sleep(g.period)
		_ = pin.Out(gpio.Low)
		g.sleep(g.period)
	}
}

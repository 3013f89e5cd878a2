package indicator

import (
	"sync"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/gpio"
)

// LED is a status light wired between a GPIO pin and ground through a
// resistor (HIGH = lit).
//
// Wiring:
// - pin: any free BCM GPIO (e.g. 17)
// - GND: Raspberry Pi ground
type LED struct {
	gpio gpio.Driver
	pin  int

	mu  sync.Mutex
	lit bool
}

// NewLED configures pin as an output and switches the LED off.
func NewLED(g gpio.Driver, pin int) *LED {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)
	return &LED{gpio: g, pin: pin}
}

var _ Indicator = (*LED)(nil)

func (l *LED) On() error {
	return l.set(true)
}

func (l *LED) Off() error {
	return l.set(false)
}

func (l *LED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(!l.lit)
}

// Lit reports the last level written.
func (l *LED) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

func (l *LED) set(lit bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(lit)
}

// write must be called with mu held.
func (l *LED) write(lit bool) error {
	debug.Trace("LED pin %d -> %v", l.pin, lit)
	if err := l.gpio.WritePin(l.pin, gpio.Level(lit)); err != nil {
		return err
	}
	l.lit = lit
	return nil
}

// Nop is an Indicator that does nothing, used when no LED pin is configured.
type Nop struct{}

func (Nop) On() error     { return nil }
func (Nop) Toggle() error { return nil }
func (Nop) Off() error    { return nil }

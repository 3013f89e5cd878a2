package indicator

import (
	"errors"
	"testing"

	"github.com/cjeanneret/DroneEye/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls   []gpioCall
	failing bool
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failing {
		return errors.New("bus error")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) { return gpio.Low, nil }

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writes() []gpio.Level {
	var out []gpio.Level
	for _, c := range d.calls {
		if c.op == "write" {
			out = append(out, c.level)
		}
	}
	return out
}

func TestNewLED_SetsUpOutputAndStartsOff(t *testing.T) {
	drv := &recordingDriver{}
	led := NewLED(drv, 17)

	if len(drv.calls) != 2 || drv.calls[0].op != "setup" || drv.calls[0].pin != 17 {
		t.Fatalf("calls = %+v, want setup then write on pin 17", drv.calls)
	}
	if drv.calls[1].level != gpio.Low {
		t.Error("LED should start LOW")
	}
	if led.Lit() {
		t.Error("LED should report off")
	}
}

func TestLED_OnToggleOff(t *testing.T) {
	drv := &recordingDriver{}
	led := NewLED(drv, 17)
	drv.calls = nil

	led.On()
	led.Toggle()
	led.Toggle()
	led.Off()

	want := []gpio.Level{gpio.High, gpio.Low, gpio.High, gpio.Low}
	got := drv.writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLED_FailedWriteKeepsState(t *testing.T) {
	drv := &recordingDriver{}
	led := NewLED(drv, 17)
	drv.failing = true

	if err := led.On(); err == nil {
		t.Fatal("expected error from failing driver")
	}
	if led.Lit() {
		t.Error("LED state should not change when the write fails")
	}
}

func TestLED_WithMockDriver(t *testing.T) {
	drv := gpio.NewMockDriver()
	led := NewLED(drv, 22)
	led.On()
	if lvl, _ := drv.ReadPin(22); lvl != gpio.High {
		t.Error("pin 22 should be HIGH after On")
	}
	led.Off()
	if lvl, _ := drv.ReadPin(22); lvl != gpio.Low {
		t.Error("pin 22 should be LOW after Off")
	}
}

func TestNop(t *testing.T) {
	var ind Indicator = Nop{}
	if ind.On() != nil || ind.Toggle() != nil || ind.Off() != nil {
		t.Error("Nop should never fail")
	}
}

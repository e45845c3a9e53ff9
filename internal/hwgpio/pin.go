// Package hwgpio backs the dht11 capabilities with real hardware: a
// periph.io GPIO pin and the host's monotonic clock.
package hwgpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Init loads the periph host drivers. Call once before Open.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

// Pin adapts a periph GPIO pin to the dht11.Pin capability.
type Pin struct {
	pin gpio.PinIO
}

// Open looks up a pin by name (e.g. "GPIO23") and leaves it driven high so
// the sensor sees a released line before the first readout.
func Open(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := p.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("pin %q out high: %w", name, err)
	}
	return &Pin{pin: p}, nil
}

func (p *Pin) IsLow() bool  { return p.pin.Read() == gpio.Low }
func (p *Pin) IsHigh() bool { return p.pin.Read() == gpio.High }

// Level and mode writes discard errors: once the pin opened successfully the
// memory-mapped backends do not fail them, and the protocol layer treats the
// line as infallible anyway — a stuck line shows up as a timeout.

func (p *Pin) SetLow()  { _ = p.pin.Out(gpio.Low) }
func (p *Pin) SetHigh() { _ = p.pin.Out(gpio.High) }

func (p *Pin) SetModeInput() { _ = p.pin.In(gpio.PullUp, gpio.NoEdge) }

// SetModeOutput switches to output mode with the line high, the idle level
// between readouts.
func (p *Pin) SetModeOutput() { _ = p.pin.Out(gpio.High) }

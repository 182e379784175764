package main

import (
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"ccs811-go/services/hal"
)

// buses maps HAL bus ids to open buses. periph's i2c.Bus already has the
// tinygo Tx shape.
type buses map[string]drivers.I2C

func (b buses) ByID(id string) (drivers.I2C, bool) {
	d, ok := b[id]
	return d, ok
}

var _ drivers.I2C = i2c.Bus(nil)

// openPeriph initialises the host drivers and opens the named I²C bus.
func openPeriph(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	return b, nil
}

// periphPins resolves GPIO numbers through the periph registry.
type periphPins struct{}

func (periphPins) ByNumber(n int) (hal.GPIOPin, bool) {
	p := gpioreg.ByName(strconv.Itoa(n))
	if p == nil {
		return nil, false
	}
	return &periphPin{p: p, n: n}, true
}

type periphPin struct {
	p gpio.PinIO
	n int
}

func (p *periphPin) Number() int { return p.n }

func (p *periphPin) ConfigureOutput(initial bool) error {
	return p.p.Out(gpio.Level(initial))
}

func (p *periphPin) Set(level bool) {
	if err := p.p.Out(gpio.Level(level)); err != nil {
		log.WithFields(log.Fields{"pin": p.n, "level": level}).WithError(err).Debug("ccs811d: gpio write failed")
	}
}

func (p *periphPin) Get() bool { return p.p.Read() == gpio.High }

package platform

import (
	"sync"

	"tinygo.org/x/drivers"

	"ccs811-go/services/hal/internal/core"
)

// ----------------------------- I²C -------------------------------------------

// MapI2C is a fixed set of buses keyed by id.
type MapI2C map[string]drivers.I2C

func (m MapI2C) ByID(id string) (drivers.I2C, bool) {
	b, ok := m[id]
	return b, ok
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin is an in-memory output pin that records its level history.
type FakePin struct {
	mu      sync.Mutex
	number  int
	level   bool
	modeOut bool
	edges   []bool
}

func (p *FakePin) Number() int { return p.number }

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.edges = append(p.edges, initial)
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.edges = append(p.edges, level)
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Output reports whether the pin has been configured as an output.
func (p *FakePin) Output() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modeOut
}

// Levels returns every level the pin has been driven to, in order.
func (p *FakePin) Levels() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.edges...)
}

// HostPinFactory returns stable *FakePin instances per number.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func (f *HostPinFactory) ByNumber(n int) (core.GPIOHandle, bool) {
	return f.Pin(n), n >= 0
}

// Pin exposes the underlying *FakePin, creating it on first use.
func (f *HostPinFactory) Pin(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*FakePin)
	}
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p
}

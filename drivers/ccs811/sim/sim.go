// Package sim emulates a CCS811 at the I2C transaction level. It satisfies
// tinygo drivers.I2C so it can stand in for a real bus in host tests and in
// the daemon's simulation mode.
package sim

import (
	"errors"
	"sync"

	"ccs811-go/drivers/ccs811"
)

var ErrNoDevice = errors.New("sim: no device at address")

// Register numbers as seen on the wire.
const (
	regStatus   = 0x00
	regMeasMode = 0x01
	regAlg      = 0x02
	regEnv      = 0x05
	regHWID     = 0x20
	regErrorID  = 0xE0
	regAppStart = 0xF4
	regSWReset  = 0xFF
)

var resetKey = [4]byte{0x11, 0xE5, 0x72, 0x8A}

// Chip is a simulated sensor. The zero value is not usable; call New.
type Chip struct {
	mu sync.Mutex

	addr uint16
	hwID byte

	noApp     bool // APP_VALID clear
	stuckBoot bool // APP_START ignored

	app  bool // running application firmware
	mode byte
	env  [4]byte
	ptr  byte

	co2, tvoc uint16
	fail      error
	resets    int
	txns      int
}

// New returns a healthy chip at addr holding a 400 ppm / 0 ppb reading.
func New(addr uint16) *Chip {
	if addr == 0 {
		addr = ccs811.AddressLow
	}
	return &Chip{addr: addr, hwID: ccs811.HardwareID, co2: 400}
}

// SetReading sets the next ALG_RESULT_DATA contents.
func (c *Chip) SetReading(co2ppm, tvocppb uint16) {
	c.mu.Lock()
	c.co2, c.tvoc = co2ppm, tvocppb
	c.mu.Unlock()
}

// SetHardwareID overrides HW_ID.
func (c *Chip) SetHardwareID(id byte) {
	c.mu.Lock()
	c.hwID = id
	c.mu.Unlock()
}

// SetNoApp clears APP_VALID, as if no application firmware were flashed.
func (c *Chip) SetNoApp(v bool) {
	c.mu.Lock()
	c.noApp = v
	c.mu.Unlock()
}

// SetStuckBoot makes APP_START a no-op.
func (c *Chip) SetStuckBoot(v bool) {
	c.mu.Lock()
	c.stuckBoot = v
	c.mu.Unlock()
}

// SetFail makes every transaction fail with err; nil restores normal operation.
func (c *Chip) SetFail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *Chip) Mode() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Chip) Env() [4]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env
}

func (c *Chip) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Transactions counts every Tx addressed to the chip.
func (c *Chip) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txns
}

func (c *Chip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr != c.addr {
		return ErrNoDevice
	}
	c.txns++
	if c.fail != nil {
		return c.fail
	}
	if len(w) > 0 {
		c.write(w[0], w[1:])
	}
	if len(r) > 0 {
		c.read(r)
	}
	return nil
}

func (c *Chip) write(reg byte, p []byte) {
	c.ptr = reg
	switch reg {
	case regAppStart:
		if !c.noApp && !c.stuckBoot {
			c.app = true
		}
	case regMeasMode:
		if len(p) > 0 && c.app {
			c.mode = p[0]
		}
	case regEnv:
		if c.app {
			copy(c.env[:], p)
		}
	case regSWReset:
		if len(p) == 4 && [4]byte(p) == resetKey {
			c.app = false
			c.mode = 0
			c.env = [4]byte{}
			c.resets++
		}
	}
}

func (c *Chip) read(r []byte) {
	for i := range r {
		r[i] = 0
	}
	switch c.ptr {
	case regStatus:
		var st byte
		if !c.noApp {
			st |= 1 << 4
		}
		if c.app {
			st |= 1 << 7
			if c.mode != 0 {
				st |= 1 << 3
			}
		}
		r[0] = st
	case regHWID:
		r[0] = c.hwID
	case regErrorID:
		r[0] = 0
	case regAlg:
		b := [4]byte{byte(c.co2 >> 8), byte(c.co2), byte(c.tvoc >> 8), byte(c.tvoc)}
		copy(r, b[:])
	}
}

package ccs811

import "tinygo.org/x/drivers"

// Bus is the two-wire transport. Read reports how many bytes it filled; a
// short count must never be returned as success with a partially filled buffer
// that the caller cannot detect.
type Bus interface {
	Write(addr uint16, w []byte) error
	Read(addr uint16, r []byte) (int, error)
}

// WakePin drives the active-low nWAKE line.
type WakePin interface {
	High()
	Low()
}

// I2C adapts a tinygo drivers.I2C to Bus. A successful Tx fills r completely.
func I2C(bus drivers.I2C) Bus { return i2cBus{bus} }

type i2cBus struct{ i2c drivers.I2C }

func (b i2cBus) Write(addr uint16, w []byte) error { return b.i2c.Tx(addr, w, nil) }

func (b i2cBus) Read(addr uint16, r []byte) (int, error) {
	if err := b.i2c.Tx(addr, nil, r); err != nil {
		return 0, err
	}
	return len(r), nil
}

// Register access. Every operation asserts nWAKE, waits WakeSettle, runs its
// transaction(s) and releases nWAKE again.

func (d *Device) begin() {
	if d.accessed {
		d.sleep(InterTxGap)
	}
	d.accessed = true
	d.wake.Low()
	d.sleep(WakeSettle)
}

func (d *Device) end() { d.wake.High() }

func (d *Device) readReg(reg byte, r []byte) error {
	d.begin()
	defer d.end()
	d.w[0] = reg
	if err := d.bus.Write(d.addr, d.w[:1]); err != nil {
		return err
	}
	n, err := d.bus.Read(d.addr, r)
	if err != nil {
		return err
	}
	if n < len(r) {
		return ErrShortRead
	}
	return nil
}

func (d *Device) readByte(reg byte) (byte, error) {
	if err := d.readReg(reg, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

// writeReg sends reg followed by up to four payload bytes.
func (d *Device) writeReg(reg byte, payload ...byte) error {
	d.begin()
	defer d.end()
	d.w[0] = reg
	n := copy(d.w[1:], payload)
	return d.bus.Write(d.addr, d.w[:1+n])
}

package ccs811

import (
	"time"
)

// Compile-time checks.
var (
	_ Bus     = (*fakeChip)(nil)
	_ WakePin = (*fakeWake)(nil)
)

type txn struct {
	write bool
	addr  uint16
	data  []byte // written bytes, or requested length for reads
	awake bool   // nWAKE asserted during the transaction
}

// fakeChip is a scripted CCS811 register map.
type fakeChip struct {
	wake *fakeWake

	hwID    byte
	boot    Status // STATUS before APP_START
	app     Status // STATUS after APP_START
	errorID byte
	result  [4]byte
	short   int   // if >0, reads return at most this many bytes
	failOn  byte  // register whose access fails
	failErr error // error returned for failOn

	started  bool
	pointer  byte
	measMode byte
	env      []byte
	resets   int

	log []txn
}

func newFakeChip() *fakeChip {
	return &fakeChip{
		wake:   &fakeWake{level: true},
		hwID:   HardwareID,
		boot:   Status(statusAppValid),
		app:    Status(statusAppValid | statusFWMode),
		result: [4]byte{0x01, 0xF4, 0x00, 0x32},
	}
}

func (f *fakeChip) Write(addr uint16, w []byte) error {
	f.log = append(f.log, txn{write: true, addr: addr, data: append([]byte(nil), w...), awake: !f.wake.level})
	if len(w) == 0 {
		return nil
	}
	if f.failErr != nil && w[0] == f.failOn {
		return f.failErr
	}
	f.pointer = w[0]
	switch w[0] {
	case regAppStart:
		if f.boot.AppValid() {
			f.started = true
		}
	case regMeasMode:
		if len(w) > 1 {
			f.measMode = w[1]
		}
	case regEnvData:
		f.env = append([]byte(nil), w[1:]...)
	case regSWReset:
		f.resets++
		f.started = false
	}
	return nil
}

func (f *fakeChip) Read(addr uint16, r []byte) (int, error) {
	f.log = append(f.log, txn{addr: addr, data: []byte{byte(len(r))}, awake: !f.wake.level})
	var src []byte
	switch f.pointer {
	case regHWID:
		src = []byte{f.hwID}
	case regStatus:
		st := f.boot
		if f.started {
			st = f.app
		}
		src = []byte{byte(st)}
	case regErrorID:
		src = []byte{f.errorID}
	case regAlgResultData:
		src = f.result[:]
	}
	n := copy(r, src)
	if f.short > 0 && n > f.short {
		n = f.short
	}
	return n, nil
}

// registers returns the register pointer of every write, in order.
func (f *fakeChip) registers() []byte {
	var regs []byte
	for _, t := range f.log {
		if t.write && len(t.data) > 0 {
			regs = append(regs, t.data[0])
		}
	}
	return regs
}

type fakeWake struct {
	level bool
	edges []bool
}

func (w *fakeWake) High() { w.level = true; w.edges = append(w.edges, true) }
func (w *fakeWake) Low()  { w.level = false; w.edges = append(w.edges, false) }

// fakeClock records requested delays instead of sleeping.
type fakeClock struct{ slept []time.Duration }

func (c *fakeClock) Sleep(d time.Duration) { c.slept = append(c.slept, d) }

func (c *fakeClock) total() time.Duration {
	var t time.Duration
	for _, d := range c.slept {
		t += d
	}
	return t
}

func newTestDevice(chip *fakeChip) (*Device, *fakeClock) {
	clk := &fakeClock{}
	d := New(chip, chip.wake, Config{Address: AddressHigh, Sleep: clk.Sleep})
	return d, clk
}

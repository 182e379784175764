// Package ccs811 provides a driver for the ams CCS811 digital gas sensor.
//
// The chip sits behind an active-low nWAKE line that must be asserted around
// every I2C access. After power-on it runs a boot loader; Initialize validates
// the hardware, starts the application firmware and selects the 1 s constant
// power drive mode:
//
//	d := ccs811.New(ccs811.I2C(bus), wakePin, ccs811.Config{Address: ccs811.AddressHigh})
//	if err := d.Initialize(); err != nil { ... }
//	m, err := d.ReadMeasurement()
//
// The driver performs no retries and never blocks beyond the fixed settle
// delays the datasheet requires. It is not safe for concurrent use.
package ccs811

import "time"

// State is the driver lifecycle.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateLowPower
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLowPower:
		return "low_power"
	default:
		return "uninitialized"
	}
}

// Config controls the bus address and timing hook. All fields are optional.
type Config struct {
	// Address defaults to AddressLow (0x5A) if zero.
	Address uint16
	// Sleep implements the fixed protocol delays. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Device is a CCS811 on a Bus with its nWAKE line.
type Device struct {
	bus   Bus
	wake  WakePin
	addr  uint16
	sleep func(time.Duration)
	state State

	accessed bool

	// Fixed buffers to avoid per-call heap allocations.
	w [5]byte
	r [resultLen]byte
}

// New binds a driver to its transport and wake line. It does not touch the bus.
func New(bus Bus, wake WakePin, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressLow
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Device{
		bus:   bus,
		wake:  wake,
		addr:  addr,
		sleep: sleep,
	}
}

func (d *Device) Address() uint16 { return d.addr }
func (d *Device) State() State    { return d.state }

// Initialize brings the chip from power-on to StateReady. The checks run in a
// fixed order and the first failure is returned as an *InitError without any
// further bus traffic.
func (d *Device) Initialize() error {
	d.state = StateUninitialized
	d.sleep(BootDelay)
	d.wake.High()

	id, err := d.readByte(regHWID)
	if err != nil {
		return err
	}
	if id != HardwareID {
		return &InitError{Reason: WrongHardwareID, HWID: id}
	}

	st, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if !st.AppValid() {
		return d.initFailure(NoApplicationFirmware, st)
	}

	if err := d.writeReg(regAppStart); err != nil {
		return err
	}
	d.sleep(AppStartDelay)

	if st, err = d.ReadStatus(); err != nil {
		return err
	}
	if !st.FirmwareMode() {
		return d.initFailure(BootModeStuck, st)
	}

	if err := d.writeReg(regMeasMode, byte(ModeConstant1s)); err != nil {
		return err
	}
	d.state = StateReady
	return nil
}

func (d *Device) initFailure(reason InitReason, st Status) error {
	eid, err := d.ReadErrorDetail(st)
	if err != nil {
		return err
	}
	return &InitError{Reason: reason, Status: st, ErrorID: eid}
}

// HardwareID returns the raw HW_ID register. Valid in any state.
func (d *Device) HardwareID() (byte, error) { return d.readByte(regHWID) }

// ReadStatus returns the STATUS register. Reading it has no side effects.
func (d *Device) ReadStatus() (Status, error) {
	b, err := d.readByte(regStatus)
	return Status(b), err
}

// ReadErrorDetail reads ERROR_ID. The value is only defined when st.Error()
// is set; callers must ignore it otherwise.
func (d *Device) ReadErrorDetail(st Status) (ErrorID, error) {
	b, err := d.readByte(regErrorID)
	if err != nil {
		return 0, err
	}
	if !st.Error() {
		return 0, nil
	}
	return ErrorID(b), nil
}

// ReadMeasurement reads ALG_RESULT_DATA. It does not consult DATA_READY: in
// 1 s mode the register always holds the latest sample.
func (d *Device) ReadMeasurement() (Measurement, error) {
	if d.state != StateReady {
		return Measurement{}, ErrMisorderedCall
	}
	if err := d.readReg(regAlgResultData, d.r[:resultLen]); err != nil {
		return Measurement{}, err
	}
	return decodeMeasurement(d.r[:resultLen]), nil
}

// SetCompensation writes ambient temperature and humidity to ENV_DATA.
func (d *Device) SetCompensation(c Compensation) error {
	if d.state != StateReady {
		return ErrMisorderedCall
	}
	p := encodeEnv(c)
	return d.writeReg(regEnvData, p[:]...)
}

// EnterLowPower selects idle mode and leaves nWAKE released. The chip ignores
// the bus until it is woken again; use Resume to restart sampling.
func (d *Device) EnterLowPower() error {
	if d.state != StateReady {
		return ErrMisorderedCall
	}
	if err := d.writeReg(regMeasMode, byte(ModeIdle)); err != nil {
		return err
	}
	d.wake.High()
	d.state = StateLowPower
	return nil
}

// Resume restarts 1 s sampling after EnterLowPower.
func (d *Device) Resume() error {
	if d.state != StateLowPower {
		return ErrMisorderedCall
	}
	if err := d.writeReg(regMeasMode, byte(ModeConstant1s)); err != nil {
		return err
	}
	d.state = StateReady
	return nil
}

// Reset issues a software reset. The chip returns to its boot loader and
// Initialize must be run again.
func (d *Device) Reset() error {
	if err := d.writeReg(regSWReset, resetKey[:]...); err != nil {
		return err
	}
	d.state = StateUninitialized
	d.sleep(ResetDelay)
	return nil
}

// services/hal/devices/ccs811/device.go
package ccs811dev

import (
	"context"

	log "github.com/sirupsen/logrus"

	"ccs811-go/drivers/ccs811"
	"ccs811-go/errcode"
	"ccs811-go/services/hal/internal/core"
	"ccs811-go/services/hal/internal/drvshim"
	"ccs811-go/types"
	"ccs811-go/x/mathx"
	"ccs811-go/x/timex"
)

type Device struct {
	id      string
	bus     string
	addr    uint16
	wakePin int

	i2c  core.I2COwner
	wake core.GPIOHandle
	pub  core.EventEmitter
	reg  core.ResourceRegistry

	// Persistent shim and driver; only touched from bus worker jobs.
	hot *drvshim.HotI2C
	drv *ccs811.Device

	jobRead, jobSleep, jobWake, jobReset *job

	capAddr core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Init(ctx context.Context) error {
	d.capAddr = core.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindAirQuality), Name: d.id}
	// nWAKE idles released (high); no bus traffic until the first job.
	return d.wake.ConfigureOutput(true)
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseI2C(d.id, core.ResourceID(d.bus))
		d.reg.ReleaseGPIO(d.id, d.wakePin)
	}
	return nil
}

func (d *Device) Control(_ core.CapAddr, method string, payload any) (core.EnqueueResult, error) {
	var j *job
	switch method {
	case types.VerbRead:
		j = d.jobRead
	case types.VerbSleep:
		j = d.jobSleep
	case types.VerbWake:
		j = d.jobWake
	case types.VerbReset:
		j = d.jobReset
	case types.VerbCompensate:
		c, code := core.As[types.AirQualityCompensate](payload)
		if code != "" || payload == nil {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		c.RHx100 = mathx.Clamp(c.RHx100, 0, 10000)
		j = &job{d: d, op: opCompensate, comp: c}
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
	if !d.i2c.TryEnqueueJob(j) {
		return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
	}
	return core.EnqueueResult{OK: true}, nil
}

// compensationFrom converts the fixed-point payload; the driver applies the
// chip's own field limits.
func compensationFrom(c types.AirQualityCompensate) ccs811.Compensation {
	return ccs811.Compensation{
		Celsius:     float32(c.DeciC) / 10,
		RelHumidity: float32(c.RHx100) / 100,
	}
}

// ---- jobs ----

type op uint8

const (
	opRead op = iota
	opCompensate
	opSleep
	opWake
	opReset
)

var _ core.I2CJob = (*job)(nil)

type job struct {
	d    *Device
	op   op
	comp types.AirQualityCompensate
}

func (j *job) Run(bus core.I2CBus) error {
	d := j.d
	d.hot.Bind(bus)
	defer d.hot.Unbind()

	var err error
	switch j.op {
	case opRead:
		err = d.read()
	case opCompensate:
		if err = d.ensureReady(); err == nil {
			err = d.drv.SetCompensation(compensationFrom(j.comp))
		}
		if err == nil {
			d.emitEvent("compensated", j.comp)
		}
	case opSleep:
		if err = d.drv.EnterLowPower(); err == nil {
			d.emitEvent("low_power", nil)
		}
	case opWake:
		if err = d.drv.Resume(); err == nil {
			d.emitEvent("resumed", nil)
		}
	case opReset:
		if err = d.drv.Reset(); err == nil {
			d.emitEvent("reset", nil)
		}
	}
	if err != nil {
		d.emitErr(d.codeFor(err))
	}
	return err
}

// ensureReady runs Initialize once per power or reset cycle.
func (d *Device) ensureReady() error {
	if d.drv.State() != ccs811.StateUninitialized {
		return nil
	}
	if err := d.drv.Initialize(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"id": d.id, "addr": d.addr}).Info("ccs811: initialised")
	return nil
}

func (d *Device) read() error {
	if err := d.ensureReady(); err != nil {
		return err
	}
	m, err := d.drv.ReadMeasurement()
	if err != nil {
		return err
	}
	d.pub.Emit(core.Event{
		Addr:    d.capAddr,
		Payload: types.AirQualityValue{CO2ppm: m.CO2ppm, TVOCppb: m.TVOCppb, TS: timex.NowMs()},
		TS:      timex.NowMs(),
	})
	return nil
}

// codeFor reports a read while asleep as low_power rather than a call-order fault.
func (d *Device) codeFor(err error) errcode.Code {
	if d.drv.State() == ccs811.StateLowPower && errcode.MapDriverErr(err) == errcode.MisorderedCall {
		return errcode.LowPower
	}
	return errcode.MapDriverErr(err)
}

func (d *Device) emitEvent(tag string, payload any) {
	d.pub.Emit(core.Event{Addr: d.capAddr, Payload: payload, TS: timex.NowMs(), IsEvent: true, EventTag: tag})
}

func (d *Device) emitErr(code errcode.Code) {
	log.WithFields(log.Fields{"id": d.id, "code": code}).Debug("ccs811: job failed")
	d.pub.Emit(core.Event{Addr: d.capAddr, Err: string(code), TS: timex.NowMs()})
}

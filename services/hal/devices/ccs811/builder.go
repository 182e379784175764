// services/hal/devices/ccs811/builder.go
package ccs811dev

import (
	"context"
	"time"

	"ccs811-go/drivers/ccs811"
	"ccs811-go/errcode"
	"ccs811-go/services/hal/internal/core"
	"ccs811-go/services/hal/internal/drvshim"
	"ccs811-go/types"
)

func init() { core.RegisterBuilder("ccs811", builder{}) }

type Params struct {
	Bus     string // e.g. "i2c1"
	Addr    uint16 // defaults to ccs811.AddressLow (0x5A) if zero
	WakePin int    // GPIO driving nWAKE
}

// sleep backs the driver's protocol delays; tests replace it.
var sleep = time.Sleep

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[Params](in.Params)
	if code != "" || p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	if p.Addr == 0 {
		p.Addr = ccs811.AddressLow
	}
	if p.Addr != ccs811.AddressLow && p.Addr != ccs811.AddressHigh {
		return nil, errcode.InvalidParams
	}

	own, err := in.Res.Reg.ClaimI2C(in.ID, core.ResourceID(p.Bus))
	if err != nil {
		return nil, err
	}
	pin, err := in.Res.Reg.ClaimGPIO(in.ID, p.WakePin)
	if err != nil {
		in.Res.Reg.ReleaseI2C(in.ID, core.ResourceID(p.Bus))
		return nil, err
	}

	d := &Device{
		id:      in.ID,
		bus:     p.Bus,
		addr:    p.Addr,
		wakePin: p.WakePin,
		i2c:     own,
		wake:    pin,
		pub:     in.Res.Pub,
		reg:     in.Res.Reg,
		hot:     &drvshim.HotI2C{},
	}
	d.drv = ccs811.New(ccs811.I2C(d.hot), wakeLine{pin}, ccs811.Config{
		Address: p.Addr,
		Sleep:   func(t time.Duration) { sleep(t) },
	})

	d.jobRead = &job{d: d, op: opRead}
	d.jobSleep = &job{d: d, op: opSleep}
	d.jobWake = &job{d: d, op: opWake}
	d.jobReset = &job{d: d, op: opReset}
	return d, nil
}

// wakeLine drives nWAKE through a claimed GPIO.
type wakeLine struct{ h core.GPIOHandle }

func (w wakeLine) High() { w.h.Set(true) }
func (w wakeLine) Low()  { w.h.Set(false) }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: types.DomainEnv,
		Kind:   types.KindAirQuality,
		Name:   d.id,
		Info: types.Info{
			SchemaVersion: 1, Driver: "ccs811",
			Detail: types.AirQualityInfo{
				Sensor: "ccs811", Addr: d.addr, Bus: d.bus,
				WakePin: d.wakePin, Mode: "constant_1s",
			},
		},
	}}
}

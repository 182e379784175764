// services/hal/hal.go
package hal

import (
	"context"

	"ccs811-go/bus"
	"ccs811-go/services/hal/internal/core"
	"ccs811-go/services/hal/internal/platform"

	ccs811dev "ccs811-go/services/hal/devices/ccs811"
)

// Factories supplied by the host platform.
type (
	I2CFactory = platform.I2CFactory
	PinFactory = platform.PinFactory
	GPIOPin    = core.GPIOHandle
)

// CCS811Params configures a "ccs811" device entry in types.HALConfig.
type CCS811Params = ccs811dev.Params

// NewHostPins returns an in-memory pin factory for hosts without GPIO.
func NewHostPins() PinFactory { return &platform.HostPinFactory{} }

// Run serves the HAL on conn until ctx is cancelled. Devices are created from
// the retained types.HALConfig on config/hal.
func Run(ctx context.Context, conn *bus.Connection, buses I2CFactory, pins PinFactory) {
	reg := platform.NewRegistry(ctx, buses, pins)
	core.NewHAL(conn, core.Resources{Reg: reg}).Run(ctx)
}

// Topic helpers for callers outside the HAL.

func TopicConfig() bus.Topic { return core.TopicConfigHAL() }
func TopicState() bus.Topic  { return core.TopicHALState() }

func CapValue(domain, kind, name string) bus.Topic  { return core.CapValue(domain, kind, name) }
func CapStatus(domain, kind, name string) bus.Topic { return core.CapStatus(domain, kind, name) }
func CapEvent(domain, kind, name string) bus.Topic  { return core.CapEvent(domain, kind, name) }
func CapCtrl(domain, kind, name, verb string) bus.Topic {
	return core.CapCtrl(domain, kind, name, verb)
}

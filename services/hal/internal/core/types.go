package core

import (
	"context"
	"errors"

	"ccs811-go/errcode"
	"ccs811-go/types"
)

// ---- Capability & device model ----

// CapAddr is the (domain, kind, name) triple a capability is published under.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // defaults from Kind when empty
	Kind   types.Kind
	Name   string // defaults to the device id when empty
	Info   types.Info
}

// EnqueueResult reports whether a control was accepted. Work that touches a
// bus runs later on the bus worker; its outcome arrives as an Event.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	// Init must not block on the bus.
	Init(ctx context.Context) error
	// Control must not block; bus work is enqueued.
	Control(addr CapAddr, method string, payload any) (EnqueueResult, error)
	Close() error
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

// ---- Device → HAL telemetry (single shape) ----
// By default an Event is a value update published retained to .../value.
// IsEvent publishes to .../event instead (non-retained). Err, when non-empty,
// publishes only .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any
	TS       int64 // ms timestamp
	Err      string
	IsEvent  bool
	EventTag string
}

type EventEmitter interface {
	// Emit must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL
}

type ResourceID string // e.g. "i2c1", "gpio17"

// ---- Transactional buses (serialised operations) ----

// I2CBus is the raw transaction surface handed to jobs running on the bus
// worker. Shape-compatible with tinygo drivers.I2C.
type I2CBus interface {
	Tx(addr uint16, w, r []byte) error
}

// I2CJob runs on the bus worker with exclusive access to the bus.
type I2CJob interface {
	Run(bus I2CBus) error
}

// I2COwner is a claimed bus. Tx blocks until the transaction completes or
// times out (timeoutMS 0 => provider default). TryEnqueueJob never blocks.
type I2COwner interface {
	Tx(addr uint16, w, r []byte, timeoutMS int) error
	TryEnqueueJob(j I2CJob) bool
}

// ---- GPIO handles ----

type GPIOHandle interface {
	Number() int
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// ---- Unified registry interface ----

type ResourceRegistry interface {
	ClaimI2C(devID string, id ResourceID) (I2COwner, error)
	ReleaseI2C(devID string, id ResourceID)

	ClaimGPIO(devID string, pin int) (GPIOHandle, error)
	ReleaseGPIO(devID string, pin int)
}

// Short error codes

var (
	ErrUnknownPin = errcode.UnknownPin
	ErrPinInUse   = errcode.PinInUse
	ErrUnknownBus = errcode.UnknownBus
	ErrTimeout    = errcode.Timeout
	ErrClosed     = errors.New("closed")
)

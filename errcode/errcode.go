package errcode

import (
	"errors"

	"ccs811-go/drivers/ccs811"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownBus Code = "unknown_bus"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Timeout    Code = "timeout"

	// Sensor conditions
	WrongHardwareID       Code = "wrong_hw_id"
	NoApplicationFirmware Code = "no_app_fw"
	BootModeStuck         Code = "boot_mode"
	ShortRead             Code = "short_read"
	MisorderedCall        Code = "misordered_call"
	LowPower              Code = "low_power"
	IOError               Code = "io_error"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		return s + ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches a code and operation to a cause.
func Wrap(c Code, op string, err error) *E {
	e := &E{C: c, Op: op, Err: err}
	if err != nil {
		e.Msg = err.Error()
	}
	return e
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code. Errors that already
// carry a Code keep it; unrecognised bus faults become io_error.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ccs811.ErrWrongHardwareID):
		return WrongHardwareID
	case errors.Is(err, ccs811.ErrNoApplicationFirmware):
		return NoApplicationFirmware
	case errors.Is(err, ccs811.ErrBootModeStuck):
		return BootModeStuck
	case errors.Is(err, ccs811.ErrShortRead):
		return ShortRead
	case errors.Is(err, ccs811.ErrMisorderedCall):
		return MisorderedCall
	}
	if c := Of(err); c != Error {
		return c
	}
	return IOError
}

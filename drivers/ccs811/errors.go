package ccs811

import "errors"

var (
	// Sentinel errors (TinyGo-safe; no fmt)
	ErrMisorderedCall = errors.New("ccs811: operation not valid in current state")
	ErrShortRead      = errors.New("ccs811: short read")

	ErrWrongHardwareID       = errors.New("ccs811: wrong hardware id")
	ErrNoApplicationFirmware = errors.New("ccs811: no application firmware")
	ErrBootModeStuck         = errors.New("ccs811: firmware still in boot mode")
)

// InitReason identifies which Initialize check failed.
type InitReason uint8

const (
	WrongHardwareID InitReason = iota + 1
	NoApplicationFirmware
	BootModeStuck
)

func (r InitReason) sentinel() error {
	switch r {
	case WrongHardwareID:
		return ErrWrongHardwareID
	case NoApplicationFirmware:
		return ErrNoApplicationFirmware
	case BootModeStuck:
		return ErrBootModeStuck
	default:
		return nil
	}
}

// InitError is returned by Initialize when the chip fails one of its checks.
// Status and ErrorID are captured where the check reads them; ErrorID is only
// meaningful when Status.Error() is set.
type InitError struct {
	Reason  InitReason
	HWID    byte
	Status  Status
	ErrorID ErrorID
}

func (e *InitError) Error() string {
	s := "ccs811: init failed"
	if base := e.Reason.sentinel(); base != nil {
		s = base.Error()
	}
	if e.Reason == WrongHardwareID {
		return s + " (got 0x" + hex8(e.HWID) + ")"
	}
	if e.Status.Error() {
		return s + " (error_id " + e.ErrorID.String() + ")"
	}
	return s
}

// Is lets errors.Is match the reason sentinels.
func (e *InitError) Is(target error) bool {
	return target != nil && target == e.Reason.sentinel()
}

// ErrorID is the ERROR_ID register. Bits are defined only while STATUS.ERROR is set.
type ErrorID uint8

const (
	ErrWriteRegInvalid ErrorID = 1 << 0 // write to an invalid register address
	ErrReadRegInvalid  ErrorID = 1 << 1 // read from an invalid register address
	ErrMeasModeInvalid ErrorID = 1 << 2 // unsupported MEAS_MODE requested
	ErrMaxResistance   ErrorID = 1 << 3 // sensor resistance reached its maximum
	ErrHeaterFault     ErrorID = 1 << 4 // heater current out of range
	ErrHeaterSupply    ErrorID = 1 << 5 // heater voltage applied incorrectly
)

func (e ErrorID) Has(flag ErrorID) bool { return e&flag != 0 }

var errorIDNames = [...]string{
	"write_reg_invalid",
	"read_reg_invalid",
	"measmode_invalid",
	"max_resistance",
	"heater_fault",
	"heater_supply",
}

// String lists the set bits joined by '|', or "none".
func (e ErrorID) String() string {
	s := ""
	for i, name := range errorIDNames {
		if e&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if rest := e &^ 0x3F; rest != 0 {
		if s != "" {
			s += "|"
		}
		s += "0x" + hex8(byte(rest))
	}
	if s == "" {
		return "none"
	}
	return s
}

func hex8(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}

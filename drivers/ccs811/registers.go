package ccs811

import "time"

const (
	// 7-bit I2C addresses selected by the ADDR strap.
	AddressLow  = 0x5A // ADDR tied low
	AddressHigh = 0x5B // ADDR tied high

	// Value the HW_ID register must hold.
	HardwareID = 0x81

	// --- Register map ---
	regStatus        = 0x00 // R, 1 byte
	regMeasMode      = 0x01 // W, 1 byte
	regAlgResultData = 0x02 // R, 4 bytes used (CO2 hi/lo, TVOC hi/lo)
	regEnvData       = 0x05 // W, 4 bytes
	regHWID          = 0x20 // R, 1 byte
	regErrorID       = 0xE0 // R, 1 byte
	regAppStart      = 0xF4 // W, 0 bytes
	regSWReset       = 0xFF // W, 4 bytes (reset key)

	// --- STATUS bits ---
	statusError     = 1 << 0
	statusDataReady = 1 << 3
	statusAppValid  = 1 << 4
	statusFWMode    = 1 << 7

	// Width of ALG_RESULT_DATA consumed by this driver.
	resultLen = 4

	// ENV_DATA whole-unit fields occupy bits 7:1; the driver never sets bit 0.
	envFieldMax = 0x7F
	tempOffsetC = 25
)

// PowerMode is the MEAS_MODE drive mode selector.
type PowerMode uint8

const (
	ModeIdle       PowerMode = 0x00 // measurements disabled, lowest power
	ModeConstant1s PowerMode = 0x10 // constant power, one sample per second
)

// Reset key written to SW_RESET.
var resetKey = [4]byte{0x11, 0xE5, 0x72, 0x8A}

// Protocol timings (datasheet).
const (
	// BootDelay covers power-on and post-flash settling before the first access.
	BootDelay = 70 * time.Millisecond
	// WakeSettle is the minimum time between nWAKE low and the I2C start.
	WakeSettle = 50 * time.Microsecond
	// InterTxGap separates back-to-back transactions.
	InterTxGap = 20 * time.Microsecond
	// AppStartDelay is the boot to application transition time after APP_START.
	AppStartDelay = 1 * time.Millisecond
	// ResetDelay is the time the boot loader needs after SW_RESET.
	ResetDelay = 2 * time.Millisecond
)

package types

// ------------------------
// Air quality (eCO2 / TVOC)
// ------------------------

// AirQualityInfo is published under hal/cap/env/air_quality/<name>/info as Info.Detail.
type AirQualityInfo struct {
	Sensor  string `json:"sensor"`   // "ccs811"
	Addr    uint16 `json:"addr"`     // I2C address
	Bus     string `json:"bus"`      // "i2c1", ...
	WakePin int    `json:"wake_pin"` // nWAKE GPIO
	Mode    string `json:"mode"`     // drive mode, e.g. "constant_1s"
}

// AirQualityValue is the retained value at hal/cap/env/air_quality/<name>/value.
type AirQualityValue struct {
	CO2ppm  uint16 `json:"co2_ppm"`
	TVOCppb uint16 `json:"tvoc_ppb"`
	TS      int64  `json:"ts_ms"`
}

// ------------------------
// Controls
// ------------------------

// AirQualityCompensate is the payload of the "compensate" verb.
// Fixed-point to match the env value conventions.
type AirQualityCompensate struct {
	DeciC  int16  `json:"deci_c"`  // tenths of °C (e.g. 236 => 23.6°C)
	RHx100 uint16 `json:"rh_x100"` // hundredths of %RH (0..10000)
}

// Verbs accepted by the air-quality capability.
const (
	VerbRead       = "read"
	VerbCompensate = "compensate"
	VerbSleep      = "sleep"
	VerbWake       = "wake"
	VerbReset      = "reset"
	VerbPollStart  = "poll_start"
	VerbPollStop   = "poll_stop"
)

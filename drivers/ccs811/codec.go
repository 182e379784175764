package ccs811

// Status is the STATUS register.
type Status uint8

func (s Status) Error() bool        { return s&statusError != 0 }
func (s Status) DataReady() bool    { return s&statusDataReady != 0 }
func (s Status) AppValid() bool     { return s&statusAppValid != 0 }
func (s Status) FirmwareMode() bool { return s&statusFWMode != 0 }

// Measurement is one ALG_RESULT_DATA sample.
type Measurement struct {
	CO2ppm  uint16 // equivalent CO2, ppm
	TVOCppb uint16 // total VOC, ppb
}

// decodeMeasurement reads CO2 then TVOC, both big-endian.
func decodeMeasurement(b []byte) Measurement {
	return Measurement{
		CO2ppm:  uint16(b[0])<<8 | uint16(b[1]),
		TVOCppb: uint16(b[2])<<8 | uint16(b[3]),
	}
}

// Compensation carries ambient conditions for the on-chip algorithm.
type Compensation struct {
	Celsius     float32
	RelHumidity float32 // percent
}

// roundHalfAway rounds to the nearest integer, halves away from zero.
func roundHalfAway(v float32) int32 {
	if v > 0 {
		return int32(v + 0.5)
	}
	if v < 0 {
		return int32(v - 0.5)
	}
	return 0
}

func clampField(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > envFieldMax {
		return envFieldMax
	}
	return byte(v)
}

// encodeEnv packs ENV_DATA as [rh<<1, 0, (t+25)<<1, 0]. The fractional bit of
// each field is left at zero, so resolution is one whole unit.
func encodeEnv(c Compensation) [4]byte {
	rh := clampField(roundHalfAway(c.RelHumidity))
	t := clampField(roundHalfAway(c.Celsius) + tempOffsetC)
	return [4]byte{rh << 1, 0, t << 1, 0}
}

package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccs811-go/drivers/ccs811"
)

type pin struct{}

func (pin) High() {}
func (pin) Low()  {}

func newDriver(c *Chip) *ccs811.Device {
	return ccs811.New(ccs811.I2C(c), pin{}, ccs811.Config{Sleep: func(time.Duration) {}})
}

func TestDriverAgainstChip(t *testing.T) {
	c := New(0)
	c.SetReading(612, 87)
	d := newDriver(c)

	require.NoError(t, d.Initialize())
	assert.Equal(t, byte(0x10), c.Mode())

	st, err := d.ReadStatus()
	require.NoError(t, err)
	assert.True(t, st.FirmwareMode())
	assert.True(t, st.DataReady())

	m, err := d.ReadMeasurement()
	require.NoError(t, err)
	assert.Equal(t, ccs811.Measurement{CO2ppm: 612, TVOCppb: 87}, m)

	require.NoError(t, d.SetCompensation(ccs811.Compensation{Celsius: 24, RelHumidity: 48}))
	assert.Equal(t, [4]byte{96, 0, 98, 0}, c.Env())

	require.NoError(t, d.EnterLowPower())
	assert.Equal(t, byte(0), c.Mode())
}

func TestChipFailures(t *testing.T) {
	c := New(ccs811.AddressLow)
	c.SetHardwareID(0x80)
	assert.ErrorIs(t, newDriver(c).Initialize(), ccs811.ErrWrongHardwareID)

	c = New(ccs811.AddressLow)
	c.SetNoApp(true)
	assert.ErrorIs(t, newDriver(c).Initialize(), ccs811.ErrNoApplicationFirmware)

	c = New(ccs811.AddressLow)
	c.SetStuckBoot(true)
	assert.ErrorIs(t, newDriver(c).Initialize(), ccs811.ErrBootModeStuck)

	boom := errors.New("nack")
	c = New(ccs811.AddressLow)
	c.SetFail(boom)
	assert.ErrorIs(t, newDriver(c).Initialize(), boom)
}

func TestChipAddressAndReset(t *testing.T) {
	c := New(ccs811.AddressHigh)
	assert.ErrorIs(t, c.Tx(ccs811.AddressLow, []byte{0x20}, nil), ErrNoDevice)

	d := ccs811.New(ccs811.I2C(c), pin{}, ccs811.Config{Address: ccs811.AddressHigh, Sleep: func(time.Duration) {}})
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Reset())
	assert.Equal(t, 1, c.Resets())
	assert.Equal(t, byte(0), c.Mode())

	st, err := d.ReadStatus()
	require.NoError(t, err)
	assert.False(t, st.FirmwareMode())

	// A wrong key is ignored.
	require.NoError(t, c.Tx(ccs811.AddressHigh, []byte{0xFF, 1, 2, 3, 4}, nil))
	assert.Equal(t, 1, c.Resets())
}

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccs811-go/bus"
	"ccs811-go/drivers/ccs811/sim"
	"ccs811-go/services/hal"
	"ccs811-go/types"
)

func startSimHAL(t *testing.T) (*bus.Connection, *sim.Chip) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	chip := sim.New(0x5A)
	b := bus.NewBus(32)
	go hal.Run(ctx, b.NewConnection("hal"), buses{halBusID: chip}, hal.NewHostPins())

	conn := b.NewConnection("ccs811d")
	conn.Publish(conn.NewMessage(hal.TopicConfig(),
		halConfig(SensorConfig{ID: "aq0", Addr: 0x5A, WakePin: 4}), true))

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	waitReady(rctx, conn)
	require.NoError(t, rctx.Err(), "hal never became ready")
	return conn, chip
}

func waitLink(t *testing.T, conn *bus.Connection, name string, link types.Link) {
	t.Helper()
	sub := conn.Subscribe(hal.CapStatus(types.DomainEnv, string(types.KindAirQuality), name))
	defer conn.Unsubscribe(sub)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == link {
				return
			}
		case <-deadline:
			t.Fatalf("%s never reached link %q", name, link)
		}
	}
}

func TestSleepSensorSkipsWhenNeverUp(t *testing.T) {
	conn, chip := startSimHAL(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, errNeverUp, sleepSensor(ctx, conn, "aq0"))
	assert.Zero(t, chip.Mode())
}

func TestSleepSensorWaitsForIdleWrite(t *testing.T) {
	conn, chip := startSimHAL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, control(ctx, conn, "aq0", types.VerbRead, nil))
	waitLink(t, conn, "aq0", types.LinkUp)
	require.Equal(t, byte(0x10), chip.Mode())

	require.NoError(t, sleepSensor(ctx, conn, "aq0"))
	// The idle write has reached the chip by the time sleepSensor returns.
	assert.Equal(t, byte(0x00), chip.Mode())
}

func TestSleepSensorUnknownCapability(t *testing.T) {
	conn, _ := startSimHAL(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, errNeverUp, sleepSensor(ctx, conn, "nobody"))
}

func TestCompensationPayload(t *testing.T) {
	cases := []struct {
		name string
		in   CompensationConfig
		want types.AirQualityCompensate
	}{
		{"typical", CompensationConfig{Celsius: 23.6, Humidity: 48.3}, types.AirQualityCompensate{DeciC: 236, RHx100: 4830}},
		{"negative humidity", CompensationConfig{Celsius: -5, Humidity: -20}, types.AirQualityCompensate{DeciC: -50, RHx100: 0}},
		{"humidity over range", CompensationConfig{Celsius: 0, Humidity: 1e6}, types.AirQualityCompensate{DeciC: 0, RHx100: 10000}},
		{"temperature over range", CompensationConfig{Celsius: 1e9, Humidity: 50}, types.AirQualityCompensate{DeciC: 32760, RHx100: 5000}},
		{"temperature under range", CompensationConfig{Celsius: -1e9, Humidity: 50}, types.AirQualityCompensate{DeciC: -32760, RHx100: 5000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, compensationPayload(tc.in))
		})
	}
}

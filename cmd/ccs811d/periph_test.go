package main

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

// failingPin is a gpio.PinIO whose writes fail.
type failingPin struct {
	gpio.PinIO
	err   error
	level gpio.Level
}

func (p *failingPin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	p.level = l
	return nil
}

func TestPeriphPinSetLogsWriteFailure(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	prev := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(prev)

	fp := &failingPin{}
	pin := &periphPin{p: fp, n: 17}
	pin.Set(true)
	assert.Equal(t, gpio.High, fp.level)
	assert.Empty(t, hook.AllEntries())

	fp.err = errors.New("sysfs: permission denied")
	pin.Set(false)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.DebugLevel, entry.Level)
	assert.Equal(t, 17, entry.Data["pin"])
	assert.Equal(t, fp.err, entry.Data[log.ErrorKey])
}

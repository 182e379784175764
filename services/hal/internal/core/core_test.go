package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccs811-go/bus"
	"ccs811-go/errcode"
	"ccs811-go/types"
)

// ---- fakes ----

type fakeDevice struct {
	id  string
	pub EventEmitter

	mu     sync.Mutex
	calls  []string
	closed bool
}

func (d *fakeDevice) ID() string { return d.id }
func (d *fakeDevice) Capabilities() []CapabilitySpec {
	return []CapabilitySpec{{Kind: types.KindAirQuality, Info: types.Info{SchemaVersion: 1, Driver: "fake"}}}
}
func (d *fakeDevice) Init(context.Context) error { return nil }
func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Control(addr CapAddr, verb string, payload any) (EnqueueResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, verb)
	d.mu.Unlock()
	switch verb {
	case types.VerbRead:
		d.pub.Emit(Event{Addr: addr, Payload: types.AirQualityValue{CO2ppm: 400}, TS: 1})
		return EnqueueResult{OK: true}, nil
	case "fail":
		d.pub.Emit(Event{Addr: addr, Err: string(errcode.ShortRead), TS: 2})
		return EnqueueResult{OK: true}, nil
	case "busy":
		return EnqueueResult{}, nil
	case "boom":
		return EnqueueResult{}, errcode.Timeout
	}
	return EnqueueResult{Error: errcode.Unsupported}, nil
}

func (d *fakeDevice) count(verb string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == verb {
			n++
		}
	}
	return n
}

type fakeBuilder struct {
	mu   sync.Mutex
	devs map[string]*fakeDevice
}

func (b *fakeBuilder) Build(_ context.Context, in BuilderInput) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &fakeDevice{id: in.ID, pub: in.Res.Pub}
	b.devs[in.ID] = d
	return d, nil
}

func (b *fakeBuilder) get(id string) *fakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devs[id]
}

var testBuilder = &fakeBuilder{devs: map[string]*fakeDevice{}}

func init() { RegisterBuilder("fake_aq", testBuilder) }

func startLoop(t *testing.T, cfg types.HALConfig) (*bus.Connection, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := bus.NewBus(32)
	c := b.NewConnection("test")
	c.Publish(c.NewMessage(TopicConfigHAL(), cfg, true))
	go NewHAL(b.NewConnection("hal"), Resources{}).Run(ctx)
	return c, cancel
}

func req(t *testing.T, c *bus.Connection, name, verb string, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := c.RequestWait(ctx, c.NewMessage(CapCtrl("env", "air_quality", name, verb), payload, false))
	require.NoError(t, err)
	return m.Payload
}

func recv(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatal("timeout")
		return nil
	}
}

// ---- tests ----

func TestAs(t *testing.T) {
	v, code := As[types.PollStart](types.PollStart{IntervalMs: 5})
	assert.Empty(t, code)
	assert.Equal(t, uint32(5), v.IntervalMs)

	v, code = As[types.PollStart](&types.PollStart{IntervalMs: 7})
	assert.Empty(t, code)
	assert.Equal(t, uint32(7), v.IntervalMs)

	_, code = As[types.PollStart]((*types.PollStart)(nil))
	assert.Empty(t, code)

	_, code = As[types.PollStart](nil)
	assert.Empty(t, code)

	_, code = As[types.PollStart](42)
	assert.Equal(t, errcode.InvalidPayload, code)
}

func TestRegisterBuilderDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { RegisterBuilder("fake_aq", testBuilder) })
}

func TestLoopPublishesInfoAndRoutesControls(t *testing.T) {
	c, _ := startLoop(t, types.HALConfig{Devices: []types.HALDevice{{ID: "f1", Type: "fake_aq"}}})

	info := recv(t, c.Subscribe(CapInfo("env", "air_quality", "f1")))
	assert.True(t, info.Retained)
	assert.Equal(t, "fake", info.Payload.(types.Info).Driver)

	status := c.Subscribe(CapStatus("env", "air_quality", "f1"))
	assert.Equal(t, types.LinkDown, recv(t, status).Payload.(types.CapabilityStatus).Link)

	value := c.Subscribe(CapValue("env", "air_quality", "f1"))
	assert.Equal(t, types.OKReply{OK: true}, req(t, c, "f1", types.VerbRead, nil))
	assert.Equal(t, uint16(400), recv(t, value).Payload.(types.AirQualityValue).CO2ppm)
	assert.Equal(t, types.LinkUp, recv(t, status).Payload.(types.CapabilityStatus).Link)

	req(t, c, "f1", "fail", nil)
	st := recv(t, status).Payload.(types.CapabilityStatus)
	assert.Equal(t, types.LinkDegraded, st.Link)
	assert.Equal(t, "short_read", st.Error)

	assert.Equal(t, types.ErrorReply{Error: "busy"}, req(t, c, "f1", "busy", nil))
	assert.Equal(t, types.ErrorReply{Error: "timeout"}, req(t, c, "f1", "boom", nil))
	assert.Equal(t, types.ErrorReply{Error: "unsupported"}, req(t, c, "f1", "dance", nil))
	assert.Equal(t, types.ErrorReply{Error: "unknown_capability"}, req(t, c, "f2", "read", nil))
}

func TestLoopClosesDevicesOnCancel(t *testing.T) {
	c, cancel := startLoop(t, types.HALConfig{Devices: []types.HALDevice{{ID: "f3", Type: "fake_aq"}}})
	// Controls are not retained; wait until the HAL has registered the device.
	recv(t, c.Subscribe(CapInfo("env", "air_quality", "f3")))
	req(t, c, "f3", types.VerbRead, nil)

	state := c.Subscribe(TopicHALState())
	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-state.Channel():
			if m.Payload.(types.HALState).Level == "stopped" {
				d := testBuilder.get("f3")
				d.mu.Lock()
				defer d.mu.Unlock()
				assert.True(t, d.closed)
				return
			}
		case <-deadline:
			t.Fatal("hal did not stop")
		}
	}
}

func TestPollerFiresAndStops(t *testing.T) {
	out := make(chan PollReq, 8)
	p := NewPoller(out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Upsert("env", types.KindAirQuality, "aq0", "read", 10*time.Millisecond, 0)
	require.True(t, p.Active("env", types.KindAirQuality, "aq0", "read"))

	select {
	case r := <-out:
		assert.Equal(t, PollReq{Domain: "env", Kind: types.KindAirQuality, Name: "aq0", Verb: "read", Every: 10 * time.Millisecond}, r)
	case <-time.After(time.Second):
		t.Fatal("poller did not fire")
	}

	p.Stop("env", types.KindAirQuality, "aq0", "read")
	assert.False(t, p.Active("env", types.KindAirQuality, "aq0", "read"))
	time.Sleep(15 * time.Millisecond)
	for len(out) > 0 {
		<-out
	}
	select {
	case r := <-out:
		t.Fatalf("fired after stop: %+v", r)
	case <-time.After(40 * time.Millisecond):
	}
}

func TestPollerIgnoresBadSchedules(t *testing.T) {
	p := NewPoller(make(chan PollReq, 1))
	p.Upsert("env", types.KindAirQuality, "aq0", "read", 0, 0)
	p.Upsert("env", types.KindAirQuality, "aq0", "", time.Second, 0)
	assert.False(t, p.Active("env", types.KindAirQuality, "aq0", "read"))

	// Stopping an unknown schedule is a no-op.
	p.Stop("env", types.KindAirQuality, "zz", "read")
}

func TestDeclarativePollerDrivesDevice(t *testing.T) {
	c, _ := startLoop(t, types.HALConfig{
		Devices: []types.HALDevice{{ID: "f4", Type: "fake_aq"}},
		Pollers: []types.PollSpec{{Domain: "env", Kind: types.KindAirQuality, Name: "f4", IntervalMs: 10}},
	})
	value := c.Subscribe(CapValue("env", "air_quality", "f4"))
	recv(t, value)
	assert.GreaterOrEqual(t, testBuilder.get("f4").count(types.VerbRead), 1)
}

package platform

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"

	"ccs811-go/services/hal/internal/core"
)

// I2CFactory resolves a bus id such as "i2c1" to a concrete bus.
type I2CFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// PinFactory resolves a GPIO number to a handle.
type PinFactory interface {
	ByNumber(n int) (core.GPIOHandle, bool)
}

const (
	jobQueueLen      = 8
	defaultTxTimeout = 25 * time.Millisecond
)

// Registry hands out buses and pins to devices. Each claimed I²C bus gets a
// single worker goroutine so every transaction on it is serialised; several
// devices may share a bus, a GPIO pin has exactly one owner.
type Registry struct {
	ctx   context.Context
	buses I2CFactory
	pins  PinFactory

	mu     sync.Mutex
	owners map[core.ResourceID]*i2cOwner
	gpio   map[int]string // pin -> devID
}

func NewRegistry(ctx context.Context, buses I2CFactory, pins PinFactory) *Registry {
	return &Registry{
		ctx:    ctx,
		buses:  buses,
		pins:   pins,
		owners: make(map[core.ResourceID]*i2cOwner),
		gpio:   make(map[int]string),
	}
}

var _ core.ResourceRegistry = (*Registry)(nil)

func (r *Registry) ClaimI2C(devID string, id core.ResourceID) (core.I2COwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.owners[id]; ok {
		o.users[devID] = struct{}{}
		return o, nil
	}
	if r.buses == nil {
		return nil, core.ErrUnknownBus
	}
	b, ok := r.buses.ByID(string(id))
	if !ok {
		return nil, core.ErrUnknownBus
	}
	o := newI2COwner(id, b)
	o.users[devID] = struct{}{}
	r.owners[id] = o
	go o.run(r.ctx)
	return o, nil
}

// ReleaseI2C stops the bus worker once its last user has gone.
func (r *Registry) ReleaseI2C(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[id]
	if !ok {
		return
	}
	delete(o.users, devID)
	if len(o.users) == 0 {
		close(o.stop)
		delete(r.owners, id)
	}
}

func (r *Registry) ClaimGPIO(devID string, n int) (core.GPIOHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pins == nil {
		return nil, core.ErrUnknownPin
	}
	h, ok := r.pins.ByNumber(n)
	if !ok {
		return nil, core.ErrUnknownPin
	}
	if owner, inUse := r.gpio[n]; inUse && owner != devID {
		return nil, core.ErrPinInUse
	}
	r.gpio[n] = devID
	return h, nil
}

func (r *Registry) ReleaseGPIO(devID string, n int) {
	r.mu.Lock()
	if owner, ok := r.gpio[n]; ok && owner == devID {
		delete(r.gpio, n)
	}
	r.mu.Unlock()
}

// ---- per-bus owner ----

type i2cOwner struct {
	id    core.ResourceID
	bus   drivers.I2C
	jobs  chan core.I2CJob
	stop  chan struct{}
	users map[string]struct{}
}

func newI2COwner(id core.ResourceID, b drivers.I2C) *i2cOwner {
	return &i2cOwner{
		id:    id,
		bus:   b,
		jobs:  make(chan core.I2CJob, jobQueueLen),
		stop:  make(chan struct{}),
		users: make(map[string]struct{}),
	}
}

func (o *i2cOwner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case j := <-o.jobs:
			if err := j.Run(o.bus); err != nil {
				log.WithField("bus", o.id).WithError(err).Debug("i2c job failed")
			}
		}
	}
}

func (o *i2cOwner) TryEnqueueJob(j core.I2CJob) bool {
	select {
	case o.jobs <- j:
		return true
	default:
		return false
	}
}

// txJob carries one synchronous transaction through the worker.
type txJob struct {
	addr uint16
	w, r []byte
	done chan error
}

func (j *txJob) Run(bus core.I2CBus) error {
	err := bus.Tx(j.addr, j.w, j.r)
	j.done <- err
	return err
}

// Tx queues a transaction behind any pending jobs and waits for it. On
// timeout the job may still run later; r must not be reused until then.
func (o *i2cOwner) Tx(addr uint16, w, r []byte, timeoutMS int) error {
	timeout := defaultTxTimeout
	if timeoutMS > 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	j := &txJob{addr: addr, w: w, r: r, done: make(chan error, 1)}
	select {
	case o.jobs <- j:
	case <-o.stop:
		return core.ErrClosed
	case <-t.C:
		return core.ErrTimeout
	}
	select {
	case err := <-j.done:
		return err
	case <-o.stop:
		return core.ErrClosed
	case <-t.C:
		return core.ErrTimeout
	}
}

package core

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"ccs811-go/types"
)

// PollReq is fired when a schedule falls due.
type PollReq struct {
	Domain string
	Kind   types.Kind
	Name   string
	Verb   string
	Every  time.Duration
}

type pollKey struct {
	d    string
	k    types.Kind
	n    string
	verb string
}

type pollItem struct {
	key    pollKey
	due    time.Time
	every  time.Duration
	jitter time.Duration
	index  int
}

// pollQueue is a min-heap on due time.
type pollQueue []*pollItem

func (q pollQueue) Len() int           { return len(q) }
func (q pollQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }
func (q pollQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *pollQueue) Push(x any)        { it := x.(*pollItem); it.index = len(*q); *q = append(*q, it) }
func (q *pollQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	it.index = -1
	*q = old[:len(old)-1]
	return it
}

// Poller fires PollReq values on a channel according to per-capability
// schedules. Sends never block: a full output drops that firing.
type Poller struct {
	mu    sync.Mutex
	wake  chan struct{}
	items map[pollKey]*pollItem
	q     pollQueue
	rand  *rand.Rand
	out   chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		wake:  make(chan struct{}, 1),
		items: make(map[pollKey]*pollItem),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Upsert adds or replaces a schedule. Each firing, including the first, is
// interval plus a uniform jitter in [0..jitter] after the previous one.
func (p *Poller) Upsert(d string, k types.Kind, n, verb string, interval, jitter time.Duration) {
	if interval <= 0 || verb == "" {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	key := pollKey{d: d, k: k, n: n, verb: verb}

	p.mu.Lock()
	it := p.items[key]
	if it == nil {
		it = &pollItem{key: key, index: -1}
		p.items[key] = it
	}
	it.every, it.jitter = interval, jitter
	it.due = time.Now().Add(p.jittered(interval, jitter))
	if it.index < 0 {
		heap.Push(&p.q, it)
	} else {
		heap.Fix(&p.q, it.index)
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Stop(d string, k types.Kind, n, verb string) {
	key := pollKey{d: d, k: k, n: n, verb: verb}
	p.mu.Lock()
	if it := p.items[key]; it != nil {
		heap.Remove(&p.q, it.index)
		delete(p.items, key)
	}
	p.mu.Unlock()
	p.wakeup()
}

// Active reports whether a schedule exists.
func (p *Poller) Active(d string, k types.Kind, n, verb string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.items[pollKey{d: d, k: k, n: n, verb: verb}]
	return ok
}

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if req, ok := p.popDue(); ok {
			select {
			case p.out <- req:
			default:
			}
			continue
		}

		var expiry <-chan time.Time
		if wait, ok := p.nextWait(); ok {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			expiry = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-expiry:
		}
	}
}

// popDue re-arms and returns the earliest schedule if it is due.
func (p *Poller) popDue() (PollReq, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return PollReq{}, false
	}
	it := p.q[0]
	now := time.Now()
	if it.due.After(now) {
		return PollReq{}, false
	}
	it.due = now.Add(p.jittered(it.every, it.jitter))
	heap.Fix(&p.q, 0)
	return PollReq{Domain: it.key.d, Kind: it.key.k, Name: it.key.n, Verb: it.key.verb, Every: it.every}, true
}

func (p *Poller) nextWait() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return 0, false
	}
	return time.Until(p.q[0].due), true
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	return interval + time.Duration(p.rand.Int63n(int64(jitter)+1))
}

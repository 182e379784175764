package core

import (
	"context"

	log "github.com/sirupsen/logrus"

	"ccs811-go/bus"
	"ccs811-go/errcode"
	"ccs811-go/types"
	"ccs811-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
)

type capKey struct {
	domain string
	kind   string
	name   string
}

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: (domain,kind,name) -> devID
	capIndex map[capKey]string

	poller *Poller
	pollCh chan PollReq

	// Single-threaded publication of device events
	evCh chan Event
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[capKey]string{},
		pollCh:   make(chan PollReq, pollQueueLen),
		evCh:     make(chan Event, eventQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

// Run owns all HAL state; it returns when ctx is cancelled, after closing
// every device.
func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(TopicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)

	go h.poller.Run(ctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			cfg, code := As[types.HALConfig](msg.Payload)
			if code != "" {
				log.WithField("payload", msg.Payload).Warn("hal: ignoring malformed config")
				continue
			}
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case pr := <-h.pollCh:
			h.handlePoll(pr)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

// applyConfig is additive and idempotent for devices that already exist.
func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		lg := log.WithFields(log.Fields{"id": dc.ID, "type": dc.Type})
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			lg.Warn("hal: no builder for device type")
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			lg.WithError(err).Error("hal: build failed")
			continue
		}
		if err := dev.Init(ctx); err != nil {
			lg.WithError(err).Error("hal: init failed")
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev
		lg.Info("hal: device added")

		// Register capabilities, publish retained info + initial status:down
		for _, cs := range dev.Capabilities() {
			k := string(cs.Kind)
			domain := cs.Domain
			if domain == "" {
				domain = defaultDomainFor(k)
			}
			name := cs.Name
			if name == "" {
				name = dev.ID()
			}
			h.capIndex[capKey{domain: domain, kind: k, name: name}] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(CapInfo(domain, k, name), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				CapStatus(domain, k, name),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs()},
				true,
			))
		}
	}

	for _, ps := range cfg.Pollers {
		verb := ps.Verb
		if verb == "" {
			verb = types.VerbRead
		}
		if _, ok := h.capIndex[capKey{domain: ps.Domain, kind: string(ps.Kind), name: ps.Name}]; !ok {
			log.WithFields(log.Fields{"domain": ps.Domain, "kind": ps.Kind, "name": ps.Name}).
				Warn("hal: poller for unknown capability")
			continue
		}
		h.poller.Upsert(ps.Domain, ps.Kind, ps.Name, verb,
			timex.Ms(ps.IntervalMs, 0), timex.Ms(ps.JitterMs, 0))
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() != 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	ownerID, ok := h.capIndex[capKey{domain: domain, kind: kind, name: name}]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case types.VerbPollStart:
		p, code := As[types.PollStart](msg.Payload)
		if code != "" || p.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if p.Verb == "" {
			p.Verb = types.VerbRead
		}
		h.poller.Upsert(domain, types.Kind(kind), name, p.Verb,
			timex.Ms(p.IntervalMs, 0), timex.Ms(p.JitterMs, 0))
		h.replyOK(msg)
		return
	case types.VerbPollStop:
		p, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if p.Verb == "" {
			p.Verb = types.VerbRead
		}
		h.poller.Stop(domain, types.Kind(kind), name, p.Verb)
		h.replyOK(msg)
		return
	}

	res, err := h.dev[ownerID].Control(CapAddr{Domain: domain, Kind: kind, Name: name}, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

func (h *HAL) handlePoll(pr PollReq) {
	key := capKey{domain: pr.Domain, kind: string(pr.Kind), name: pr.Name}
	ownerID, ok := h.capIndex[key]
	if !ok {
		h.poller.Stop(pr.Domain, pr.Kind, pr.Name, pr.Verb)
		return
	}
	res, err := h.dev[ownerID].Control(CapAddr{Domain: pr.Domain, Kind: string(pr.Kind), Name: pr.Name}, pr.Verb, nil)
	if err != nil || !res.OK {
		log.WithFields(log.Fields{"name": pr.Name, "verb": pr.Verb, "code": res.Error}).
			Debug("hal: poll not accepted")
	}
}

func (h *HAL) handleEvent(ev Event) {
	d, k, n := ev.Addr.Domain, ev.Addr.Kind, ev.Addr.Name

	// 1) Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			CapStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ev.TS, Error: ev.Err},
			true,
		))
		return
	}

	// 2) Success: event vs value
	if ev.IsEvent {
		t := CapEvent(d, k, n)
		if ev.EventTag != "" {
			t = t.Append(ev.EventTag)
		}
		h.conn.Publish(h.conn.NewMessage(t, ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(CapValue(d, k, n), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(
		CapStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TS: ev.TS},
		true,
	))
}

func (h *HAL) closeAll() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			log.WithField("id", id).WithError(err).Warn("hal: close failed")
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		TopicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowMs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	switch kind {
	case string(types.KindAirQuality):
		return types.DomainEnv
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}

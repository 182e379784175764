// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"ccs811-go/bus"
	"ccs811-go/types"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge until ctx is cancelled. It waits for a Config on
// config/bridge and (re)connects to the broker whenever a new one arrives.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("bridge", "state"),
		dial:       Dial,
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is accepted on "config/bridge" as a value, pointer or JSON.
type Config struct {
	Broker           string `json:"broker"` // e.g. "tcp://localhost:1883"
	ClientID         string `json:"client_id,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	Prefix           string `json:"prefix,omitempty"` // default "ccs811"
	QoS              byte   `json:"qos,omitempty"`
	RetainValues     bool   `json:"retain_values,omitempty"`
	ConnectTimeoutMS int    `json:"connect_timeout_ms,omitempty"`
	ReplyTimeoutMS   int    `json:"reply_timeout_ms,omitempty"`
}

const (
	defaultPrefix         = "ccs811"
	defaultConnectTimeout = 5 * time.Second
	defaultReplyTimeout   = 2 * time.Second
)

func (c *Config) normalise() {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	c.Prefix = strings.TrimSuffix(c.Prefix, "/")
	if c.ClientID == "" {
		c.ClientID = "ccs811-" + uuid.NewString()
	}
	if c.QoS > 2 {
		c.QoS = 2
	}
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeoutMS > 0 {
		return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
	}
	return defaultConnectTimeout
}

func (c Config) replyTimeout() time.Duration {
	if c.ReplyTimeoutMS > 0 {
		return time.Duration(c.ReplyTimeoutMS) * time.Millisecond
	}
	return defaultReplyTimeout
}

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Dial builds a paho client for cfg. Replaced in tests.
var Dial = func(cfg Config) Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.connectTimeout())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return mqtt.NewClient(opts)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic
	dial       func(Config) Client

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	if cfg.Broker == "" {
		s.publishState("error", "no_broker", nil)
		return
	}
	cfg.normalise()
	lg := log.WithFields(log.Fields{"broker": cfg.Broker, "client_id": cfg.ClientID})

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		c := s.dial(cfg)
		tok := c.Connect()
		if err := wait(tok, cfg.connectTimeout()); err != nil {
			delay := backoff()
			lg.WithError(err).Warn("bridge: connect failed")
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		lg.Info("bridge: connected")
		err := s.handleLink(ctx, cfg, c)
		c.Disconnect(250)
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

var errLinkLost = errors.New("broker connection lost")

// downlink is one control request received from the broker.
type downlink struct {
	name, verb string
	payload    []byte
}

// handleLink forwards HAL traffic up and control requests down until ctx ends
// (nil) or the broker link drops.
func (s *Service) handleLink(ctx context.Context, cfg Config, c Client) error {
	down := make(chan downlink, 16)
	ctrl := cfg.Prefix + "/+/control/+"
	tok := c.Subscribe(ctrl, cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		name, verb, ok := parseControlTopic(cfg.Prefix, m.Topic())
		if !ok {
			return
		}
		select {
		case down <- downlink{name: name, verb: verb, payload: append([]byte(nil), m.Payload()...)}:
		default:
			log.WithField("topic", m.Topic()).Warn("bridge: downlink queue full")
		}
	})
	if err := wait(tok, cfg.connectTimeout()); err != nil {
		return err
	}

	values := s.conn.Subscribe(aqTopic("value"))
	status := s.conn.Subscribe(aqTopic("status"))
	defer s.conn.Unsubscribe(values)
	defer s.conn.Unsubscribe(status)
	s.publishState("up", "link_established", nil)

	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-values.Channel():
			s.uplink(c, cfg, m, "value", cfg.RetainValues)
		case m := <-status.Channel():
			s.uplink(c, cfg, m, "status", true)
		case d := <-down:
			go s.forward(ctx, c, cfg, d)
		case <-health.C:
			if !c.IsConnected() {
				return errLinkLost
			}
		}
	}
}

func aqTopic(leaf string) bus.Topic {
	return bus.T("hal", "cap", types.DomainEnv, string(types.KindAirQuality), "+", leaf)
}

// parseControlTopic splits "<prefix>/<name>/control/<verb>".
func parseControlTopic(prefix, topic string) (name, verb string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "control" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

func (s *Service) uplink(c Client, cfg Config, m *bus.Message, leaf string, retain bool) {
	name, ok := m.Topic.At(4).(string)
	if !ok {
		return
	}
	b, err := json.Marshal(m.Payload)
	if err != nil {
		log.WithError(err).WithField("sensor", name).Warn("bridge: encode failed")
		return
	}
	c.Publish(cfg.Prefix+"/"+name+"/"+leaf, cfg.QoS, retain, b)
}

// forward turns a downlink into a HAL control request and publishes the reply
// on "<prefix>/<name>/reply/<verb>".
func (s *Service) forward(ctx context.Context, c Client, cfg Config, d downlink) {
	var reply any
	payload, err := decodeControl(d.verb, d.payload)
	if err != nil {
		reply = types.ErrorReply{Error: "invalid_payload"}
	} else {
		rctx, cancel := context.WithTimeout(ctx, cfg.replyTimeout())
		defer cancel()
		msg := s.conn.NewMessage(
			bus.T("hal", "cap", types.DomainEnv, string(types.KindAirQuality), d.name, "control", d.verb),
			payload, false)
		m, err := s.conn.RequestWait(rctx, msg)
		if err != nil {
			reply = types.ErrorReply{Error: "timeout"}
		} else {
			reply = m.Payload
		}
	}
	b, _ := json.Marshal(reply)
	c.Publish(cfg.Prefix+"/"+d.name+"/reply/"+d.verb, cfg.QoS, false, b)
}

// decodeControl maps a JSON body to the payload type the HAL expects.
func decodeControl(verb string, body []byte) (any, error) {
	var v any
	switch verb {
	case types.VerbCompensate:
		v = &types.AirQualityCompensate{}
	case types.VerbPollStart:
		v = &types.PollStart{}
	case types.VerbPollStop:
		v = &types.PollStop{}
	default:
		return nil, nil
	}
	if len(body) == 0 {
		if verb == types.VerbPollStop {
			return v, nil
		}
		return nil, errors.New("empty payload")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, err
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case *Config:
		if v == nil {
			return cfg, errors.New("nil config")
		}
		return *v, nil
	case []byte:
		err := json.Unmarshal(v, &cfg)
		return cfg, err
	case string:
		err := json.Unmarshal([]byte(v), &cfg)
		return cfg, err
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
}

func (s *Service) publishState(level, status string, err error) {
	st := State{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, st, true))
}

// State is published retained on bridge/state.
type State struct {
	Level  string `json:"level"`  // "idle", "up", "degraded", "error"
	Status string `json:"status"` // short machine string
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

func wait(t mqtt.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return errors.New("mqtt: timed out")
	}
	return t.Error()
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

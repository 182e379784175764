// Package telemetry turns HAL air-quality traffic into Prometheus metrics and
// keeps the latest reading per sensor for status queries.
package telemetry

import (
	"context"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"ccs811-go/bus"
	"ccs811-go/types"
)

// Reading is the last known state of one sensor.
type Reading struct {
	Name    string     `json:"name"`
	CO2ppm  uint16     `json:"co2_ppm"`
	TVOCppb uint16     `json:"tvoc_ppb"`
	TS      int64      `json:"ts_ms"`
	Link    types.Link `json:"link"`
	Error   string     `json:"error,omitempty"`
}

type Service struct {
	conn *bus.Connection

	co2    *prometheus.GaugeVec
	tvoc   *prometheus.GaugeVec
	linkUp *prometheus.GaugeVec
	errors *prometheus.CounterVec

	mu   sync.RWMutex
	last map[string]Reading
}

// New creates the collectors and registers them with reg.
func New(conn *bus.Connection, reg prometheus.Registerer) *Service {
	s := &Service{
		conn: conn,
		co2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccs811_co2_ppm",
			Help: "Latest equivalent CO2 reading in ppm.",
		}, []string{"sensor"}),
		tvoc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccs811_tvoc_ppb",
			Help: "Latest total VOC reading in ppb.",
		}, []string{"sensor"}),
		linkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccs811_link_up",
			Help: "1 when the sensor's last operation succeeded.",
		}, []string{"sensor"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccs811_errors_total",
			Help: "Failed sensor operations by error code.",
		}, []string{"sensor", "code"}),
		last: make(map[string]Reading),
	}
	reg.MustRegister(s.co2, s.tvoc, s.linkUp, s.errors)
	return s
}

func capTopic(leaf string) bus.Topic {
	return bus.T("hal", "cap", types.DomainEnv, string(types.KindAirQuality), "+", leaf)
}

// Run consumes value and status updates until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	values := s.conn.Subscribe(capTopic("value"))
	status := s.conn.Subscribe(capTopic("status"))
	defer s.conn.Unsubscribe(values)
	defer s.conn.Unsubscribe(status)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-values.Channel():
			s.onValue(m)
		case m := <-status.Channel():
			s.onStatus(m)
		}
	}
}

func sensorName(m *bus.Message) (string, bool) {
	name, ok := m.Topic.At(4).(string)
	return name, ok && name != ""
}

func (s *Service) onValue(m *bus.Message) {
	name, ok := sensorName(m)
	v, vok := m.Payload.(types.AirQualityValue)
	if !ok || !vok {
		return
	}
	s.co2.WithLabelValues(name).Set(float64(v.CO2ppm))
	s.tvoc.WithLabelValues(name).Set(float64(v.TVOCppb))

	s.mu.Lock()
	r := s.last[name]
	r.Name, r.CO2ppm, r.TVOCppb, r.TS = name, v.CO2ppm, v.TVOCppb, v.TS
	s.last[name] = r
	s.mu.Unlock()
}

func (s *Service) onStatus(m *bus.Message) {
	name, ok := sensorName(m)
	st, sok := m.Payload.(types.CapabilityStatus)
	if !ok || !sok {
		return
	}
	up := 0.0
	if st.Link == types.LinkUp {
		up = 1
	}
	s.linkUp.WithLabelValues(name).Set(up)
	if st.Error != "" {
		s.errors.WithLabelValues(name, st.Error).Inc()
		log.WithFields(log.Fields{"sensor": name, "code": st.Error}).Warn("telemetry: sensor degraded")
	}

	s.mu.Lock()
	r := s.last[name]
	r.Name, r.Link, r.Error = name, st.Link, st.Error
	s.last[name] = r
	s.mu.Unlock()
}

// Last returns the latest known state for name.
func (s *Service) Last(name string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[name]
	return r, ok
}

// Snapshot returns every known sensor ordered by name.
func (s *Service) Snapshot() []Reading {
	s.mu.RLock()
	out := make([]Reading, 0, len(s.last))
	for _, r := range s.last {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

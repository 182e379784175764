package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"ccs811-go/services/heartbeat"
	"ccs811-go/services/telemetry"
	"ccs811-go/types"
)

type stubReadings map[string]telemetry.Reading

func (s stubReadings) Last(name string) (telemetry.Reading, bool) {
	r, ok := s[name]
	return r, ok
}

func (s stubReadings) Snapshot() []telemetry.Reading {
	out := make([]telemetry.Reading, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	return out
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSensorEndpoints(t *testing.T) {
	a := &api{data: stubReadings{"aq0": {Name: "aq0", CO2ppm: 450, TVOCppb: 7, Link: types.LinkUp}}}
	r := newRouter(a, prometheus.NewRegistry())

	rec := get(t, r, "/v1/sensors/aq0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"aq0","co2_ppm":450,"tvoc_ppb":7,"ts_ms":0,"link":"up"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, r, "/v1/sensors/nope").Code)

	rec = get(t, r, "/v1/sensors")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"aq0"`)
}

func TestHealthz(t *testing.T) {
	a := &api{data: stubReadings{}}
	r := newRouter(a, prometheus.NewRegistry())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/healthz").Code)
	a.halState.Store(types.HALState{Level: "ready"})
	a.beat.Store(heartbeat.Beat{UptimeS: 42})
	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uptime_s":42`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccs811_test_gauge", Help: "test"})
	reg.MustRegister(g)
	g.Set(3)

	rec := get(t, newRouter(&api{data: stubReadings{}}, reg), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ccs811_test_gauge 3")
}

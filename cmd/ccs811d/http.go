package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ccs811-go/services/heartbeat"
	"ccs811-go/services/telemetry"
	"ccs811-go/types"
)

// readings is the subset of telemetry.Service the HTTP API serves.
type readings interface {
	Last(name string) (telemetry.Reading, bool)
	Snapshot() []telemetry.Reading
}

type api struct {
	data     readings
	halState atomic.Value // types.HALState
	beat     atomic.Value // heartbeat.Beat
}

type health struct {
	HAL     types.HALState `json:"hal"`
	UptimeS int64          `json:"uptime_s"`
}

func newRouter(a *api, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/v1/sensors", a.list).Methods(http.MethodGet)
	r.HandleFunc("/v1/sensors/{name}", a.sensor).Methods(http.MethodGet)
	return r
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	st, _ := a.halState.Load().(types.HALState)
	hb, _ := a.beat.Load().(heartbeat.Beat)
	code := http.StatusOK
	if st.Level != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health{HAL: st, UptimeS: hb.UptimeS})
}

func (a *api) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.data.Snapshot())
}

func (a *api) sensor(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rd, ok := a.data.Last(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown sensor"})
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

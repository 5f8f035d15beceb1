// Package metrics exposes Prometheus metrics for the screener: detection
// cycle progress, signal counts, delivery outcomes and admission-control
// events, served over a small HTTP endpoint.
package metrics

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the screener.
type Metrics struct {
	CyclesTotal  prometheus.Counter
	UnitsTotal   prometheus.Counter
	UnitFailures prometheus.Counter
	FetchDur     prometheus.Histogram

	SignalsTotal *prometheus.CounterVec // labels: kind

	DeliveriesTotal  prometheus.Counter
	DeliveryFailures *prometheus.CounterVec // labels: class=transient|permanent
	AutoUnsubscribes prometheus.Counter

	AuthLockouts prometheus.Counter
	Subscribers  prometheus.Gauge
}

// New registers and returns all screener metrics.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_cycles_total",
			Help: "Detection cycles started",
		}),
		UnitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_units_total",
			Help: "Fetch+detect work units processed",
		}),
		UnitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_unit_failures_total",
			Help: "Work units that failed (fetch error, bad data, detector error)",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_fetch_duration_seconds",
			Help:    "Candle fetch latency per work unit",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_signals_total",
			Help: "Signals emitted by detectors",
		}, []string{"kind"}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_deliveries_total",
			Help: "Messages delivered to recipients",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_delivery_failures_total",
			Help: "Delivery failures by class (transient or permanent)",
		}, []string{"class"}),
		AutoUnsubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_auto_unsubscribes_total",
			Help: "Subscribers evicted after permanent delivery failures",
		}),
		AuthLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_auth_lockouts_total",
			Help: "Admission-control lockouts triggered",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_subscribers",
			Help: "Current number of authorized subscribers",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.UnitsTotal,
		m.UnitFailures,
		m.FetchDur,
		m.SignalsTotal,
		m.DeliveriesTotal,
		m.DeliveryFailures,
		m.AutoUnsubscribes,
		m.AuthLockouts,
		m.Subscribers,
	)
	return m
}

// Health tracks liveness facts for the /healthz endpoint.
type Health struct {
	mu sync.RWMutex

	startedAt     time.Time
	lastCycleAt   time.Time
	lastCycleOK   bool
	listenerAlive bool
}

// NewHealth returns a health tracker with the start time set to now.
func NewHealth() *Health {
	return &Health{startedAt: time.Now()}
}

// SetLastCycle records the outcome of the most recent detection cycle.
func (h *Health) SetLastCycle(ok bool) {
	h.mu.Lock()
	h.lastCycleAt = time.Now()
	h.lastCycleOK = ok
	h.mu.Unlock()
}

// SetListenerAlive records whether the inbound polling loop is running.
func (h *Health) SetListenerAlive(v bool) {
	h.mu.Lock()
	h.listenerAlive = v
	h.mu.Unlock()
}

func (h *Health) snapshot() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := map[string]interface{}{
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"last_cycle_ok":  h.lastCycleOK,
		"listener_alive": h.listenerAlive,
	}
	if !h.lastCycleAt.IsZero() {
		out["last_cycle_at"] = h.lastCycleAt.UTC().Format(time.RFC3339)
	}
	return out
}

// Serve starts the metrics/health HTTP server in a background goroutine.
func Serve(addr string, health *Health) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health.snapshot())
	})

	go func() {
		log.Printf("[metrics] serving on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()
}

// Package metrics exposes Prometheus instrumentation for the calculation
// pipeline. Collectors live on a private registry so tests and embedded uses
// never collide with the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policycalc"

// Collector groups every metric the pipeline records. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	started         *prometheus.CounterVec
	finished        *prometheus.CounterVec
	duplicateStarts prometheus.Counter
	activePolls     prometheus.Gauge
	pollTicks       *prometheus.CounterVec
	persists        *prometheus.CounterVec
	fanOutUnits     *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_started_total",
			Help:      "Calculations accepted by the orchestrator.",
		}, []string{"calc_type"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_finished_total",
			Help:      "Calculations that reached a terminal state.",
		}, []string{"calc_type", "state"}),
		duplicateStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_starts_total",
			Help:      "Start requests absorbed because the calculation was already running or complete.",
		}),
		activePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_polls",
			Help:      "Polling loops currently scheduled.",
		}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by outcome.",
		}, []string{"outcome"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Result persistence attempts by outcome.",
		}, []string{"outcome"}),
		fanOutUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_units_total",
			Help:      "Fan-out units settled by outcome.",
		}, []string{"outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of backend API calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"call", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Read-side API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		c.started, c.finished, c.duplicateStarts, c.activePolls, c.pollTicks,
		c.persists, c.fanOutUnits, c.backendLatency, c.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CalculationStarted(calcType string) {
	if c == nil {
		return
	}
	c.started.WithLabelValues(calcType).Inc()
}

func (c *Collector) CalculationFinished(calcType, state string) {
	if c == nil {
		return
	}
	c.finished.WithLabelValues(calcType, state).Inc()
}

func (c *Collector) DuplicateStart() {
	if c == nil {
		return
	}
	c.duplicateStarts.Inc()
}

func (c *Collector) PollStarted() {
	if c == nil {
		return
	}
	c.activePolls.Inc()
}

func (c *Collector) PollStopped() {
	if c == nil {
		return
	}
	c.activePolls.Dec()
}

// PollTick records one poll by outcome (status name, "error" or "discarded").
func (c *Collector) PollTick(outcome string) {
	if c == nil {
		return
	}
	c.pollTicks.WithLabelValues(outcome).Inc()
}

// Persisted records a persistence outcome ("ok", "failed" or "skipped").
func (c *Collector) Persisted(outcome string) {
	if c == nil {
		return
	}
	c.persists.WithLabelValues(outcome).Inc()
}

func (c *Collector) FanOutUnit(outcome string) {
	if c == nil {
		return
	}
	c.fanOutUnits.WithLabelValues(outcome).Inc()
}

// ObserveBackend records the latency of one backend call.
func (c *Collector) ObserveBackend(call string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.backendLatency.WithLabelValues(call, outcome).Observe(time.Since(start).Seconds())
}

func (c *Collector) HTTPRequest(route, code string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, code).Inc()
}

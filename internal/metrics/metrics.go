// Package metrics exposes Prometheus collectors for the engine and the HTTP
// API. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes used as the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusBusy  = "busy"
)

type Metrics struct {
	reg *prometheus.Registry

	generations *prometheus.CounterVec
	stops       *prometheus.CounterVec
	tokens      prometheus.Counter
	duration    prometheus.Histogram
	inFlight    prometheus.Gauge
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_generations_total",
			Help: "Answer generations by outcome",
		}, []string{"status"}),
		stops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_generation_stops_total",
			Help: "Completed generations by stop reason",
		}, []string{"reason"}),
		tokens: f.NewCounter(prometheus.CounterOpts{
			Name: "glimpse_generated_tokens_total",
			Help: "Tokens emitted across all generations",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "glimpse_generation_duration_seconds",
			Help:    "Wall time of a full answer generation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "glimpse_generations_in_flight",
			Help: "Generations currently holding the engine (0 or 1)",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "glimpse_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glimpse_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// GenerationStarted marks the engine as busy.
func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// GenerationFinished records a generation that held the engine.
func (m *Metrics) GenerationFinished(tokens int, stopReason string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.duration.Observe(d.Seconds())
	m.tokens.Add(float64(tokens))
	if err != nil {
		m.generations.WithLabelValues(StatusError).Inc()
		return
	}
	m.generations.WithLabelValues(StatusOK).Inc()
	m.stops.WithLabelValues(stopReason).Inc()
}

// GenerationRejected records a call turned away because the engine was busy.
func (m *Metrics) GenerationRejected() {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(StatusBusy).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

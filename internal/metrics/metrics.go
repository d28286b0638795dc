// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records request, mutation and storage activity.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	simulation    prometheus.Histogram
	published     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the process-wide default registry.
func New(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	m := &Metrics{
		gatherer: gatherer,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptc_http_requests_total",
			Help: "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ptc_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptc_overlay_mutations_total",
			Help: "Overlay mutations by operation and whether they changed state.",
		}, []string{"op", "changed"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptc_storage_errors_total",
			Help: "Storage failures surfaced to callers, by kind.",
		}, []string{"kind"}),
		simulation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptc_simulation_duration_seconds",
			Help:    "Time spent computing one scenario report.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptc_audit_events_published_total",
			Help: "Audit entries sent to the event sink, by result.",
		}, []string{"result"}),
	}

	registerer.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.mutations,
		m.storageErrors,
		m.simulation,
		m.published,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to one route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Mutation records one overlay mutation.
func (m *Metrics) Mutation(op string, changed bool) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, strconv.FormatBool(changed)).Inc()
}

// StorageError records a storage failure of the given kind.
func (m *Metrics) StorageError(kind string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(kind).Inc()
}

// ObserveSimulation records how long one scenario report took.
func (m *Metrics) ObserveSimulation(d time.Duration) {
	if m == nil {
		return
	}
	m.simulation.Observe(d.Seconds())
}

// Published records entries sent to the event sink.
func (m *Metrics) Published(n int, err error) {
	if m == nil || n == 0 {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(result).Add(float64(n))
}

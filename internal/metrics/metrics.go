// Package metrics provides Prometheus instrumentation for the dashboard core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bilancio/internal/aggregate"
	"bilancio/internal/events"
)

// Metrics groups the collectors. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	FetchFailures   *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	SecurityEvents  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_events_published_total",
			Help: "Domain events published on the bus",
		}, []string{"event"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_event_handler_failures_total",
			Help: "Event handlers that returned an error or panicked",
		}, []string{"event"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_records_skipped_total",
			Help: "Records excluded from aggregation, by reason",
		}, []string{"panel", "reason"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bilancio_fetch_duration_seconds",
			Help:    "Backend fetch latency per panel refresh",
			Buckets: prometheus.DefBuckets,
		}, []string{"panel"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_fetch_failures_total",
			Help: "Panel refreshes that failed to fetch",
		}, []string{"panel"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bilancio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "path"}),
		SecurityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bilancio_http_security_events_total",
			Help: "Rejected or suspicious HTTP requests, by kind",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.EventsPublished,
		m.HandlerFailures,
		m.RecordsSkipped,
		m.FetchDuration,
		m.FetchFailures,
		m.HTTPRequests,
		m.HTTPDuration,
		m.SecurityEvents,
	)
	return m
}

// EventPublished implements events.Observer.
func (m *Metrics) EventPublished(name events.Name) {
	m.EventsPublished.WithLabelValues(string(name)).Inc()
}

// HandlerFailed implements events.Observer.
func (m *Metrics) HandlerFailed(name events.Name) {
	m.HandlerFailures.WithLabelValues(string(name)).Inc()
}

// ObserveSkips records aggregation diagnostics for a panel.
func (m *Metrics) ObserveSkips(panel string, diag aggregate.Diagnostics) {
	for reason, n := range diag.ByReason() {
		m.RecordsSkipped.WithLabelValues(panel, string(reason)).Add(float64(n))
	}
}

// ObserveFetch records one panel fetch.
func (m *Metrics) ObserveFetch(panel string, d time.Duration, err error) {
	m.FetchDuration.WithLabelValues(panel).Observe(d.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(panel).Inc()
	}
}

// SecurityEvent counts a rate-limited or suspicious request.
func (m *Metrics) SecurityEvent(kind string) {
	m.SecurityEvents.WithLabelValues(kind).Inc()
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics. pattern labels the path to keep
// cardinality bounded.
func (m *Metrics) Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.HTTPDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(wrapped.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

var _ events.Observer = (*Metrics)(nil)

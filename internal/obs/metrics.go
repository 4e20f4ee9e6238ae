package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientMetrics instruments the request client and session managers. A nil
// *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	requests    *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	retries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewClientMetrics creates the client collectors and registers them with reg
// when reg is not nil.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mart_client_requests_total",
			Help: "Outgoing API requests by namespace, method and status.",
		}, []string{"namespace", "method", "status"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mart_client_token_refreshes_total",
			Help: "Silent token refresh attempts by namespace and result.",
		}, []string{"namespace", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mart_client_retries_total",
			Help: "Requests re-issued after a refresh, by namespace and final status.",
		}, []string{"namespace", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mart_session_transitions_total",
			Help: "Session state transitions by namespace and target state.",
		}, []string{"namespace", "state"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes, m.retries, m.transitions)
	}
	return m
}

func (m *ClientMetrics) ObserveRequest(namespace, method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(namespace, method, statusLabel(status)).Inc()
}

func (m *ClientMetrics) ObserveRefresh(namespace, result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(namespace, result).Inc()
}

func (m *ClientMetrics) ObserveRetry(namespace string, status int) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(namespace, statusLabel(status)).Inc()
}

func (m *ClientMetrics) ObserveTransition(namespace, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(namespace, state).Inc()
}

// statusLabel maps transport failures (status 0) to "error".
func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

// ServerMetrics instruments the development backend.
type ServerMetrics struct {
	inFlight prometheus.Gauge
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

func NewServerMetrics() *ServerMetrics {
	m := &ServerMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.inFlight, m.total, m.duration)
	return m
}

// Handler serves the server registry in the Prometheus exposition format.
func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records count, latency and in-flight gauge for next.
func (m *ServerMetrics) Instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next(sw, r)

		status := strconv.Itoa(sw.code)
		m.duration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		m.total.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	}
}

// StatusWriter exposes the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Status returns the recorded status code.
func (w *statusWriter) Status() int {
	return w.code
}

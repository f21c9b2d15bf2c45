// Package metrics exposes tracker and HTTP counters in Prometheus format.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests can create as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsOpen    prometheus.Gauge
	ItemsCompleted  *prometheus.CounterVec
	UnitsCompleted  *prometheus.CounterVec
	QuizzesScored   *prometheus.CounterVec
	PersistFailures prometheus.Counter

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_sessions_open",
			Help: "Number of open tracking sessions",
		}),
		ItemsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_items_completed_total",
			Help: "Sub-items marked completed",
		}, []string{"kind"}),
		UnitsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_units_completed_total",
			Help: "Units whose completion callback fired",
		}, []string{"kind"}),
		QuizzesScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_quizzes_scored_total",
			Help: "Scored quiz attempts",
		}, []string{"passed"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_persist_failures_total",
			Help: "Background writes that failed",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsOpen,
		m.ItemsCompleted,
		m.UnitsCompleted,
		m.QuizzesScored,
		m.PersistFailures,
		m.requests,
		m.duration,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request count and latency per matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

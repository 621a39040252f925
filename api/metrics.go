package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Submissions counts week submissions by outcome
	// (submitted, rejected, locked, partial, in_flight, error).
	Submissions *prometheus.CounterVec
	Violations  *prometheus.CounterVec
	LeaveBlocks *prometheus.CounterVec
	GuardDenied prometheus.Counter
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timesheet_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timesheet_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"route"},
		),

		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timesheet_submissions_total",
				Help: "Week submissions by outcome",
			},
			[]string{"outcome"},
		),

		Violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timesheet_validation_violations_total",
				Help: "Rule violations reported to users by kind",
			},
			[]string{"kind"},
		),

		LeaveBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timesheet_leave_blocks_total",
				Help: "Leave registrations and deletions by reason and action",
			},
			[]string{"reason", "action"},
		),

		GuardDenied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "timesheet_guard_denied_total",
				Help: "Mutations rejected because another one was in flight for the same week",
			},
		),
	}

	m.registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.Submissions,
		m.Violations,
		m.LeaveBlocks,
		m.GuardDenied,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// observeViolations counts each reported violation by kind.
func (m *Metrics) observeViolations(kinds []string) {
	for _, k := range kinds {
		m.Violations.WithLabelValues(k).Inc()
	}
}

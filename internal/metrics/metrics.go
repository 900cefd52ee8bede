// Package metrics exposes the service's Prometheus collectors on a dedicated
// registry. Every record method is safe on a nil *Metrics.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kysafety"

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	transitionsTotal    *prometheus.CounterVec
	broadcastsTotal     *prometheus.CounterVec
	riskAnalysesTotal   *prometheus.CounterVec
	riskFactor          prometheus.Histogram
	webhookEventsTotal  *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status_code"})

	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Time taken for HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approval_transitions_total",
		Help:      "Approval transitions by action and outcome",
	}, []string{"action", "outcome"})

	m.broadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Broadcast gateway calls by outcome",
	}, []string{"outcome"})

	m.riskAnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_analyses_total",
		Help:      "Photo risk analyses by outcome",
	}, []string{"outcome"})

	m.riskFactor = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_image_factor",
		Help:      "Distribution of computed image risk factors",
		Buckets:   []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5},
	})

	m.webhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Inbound LINE webhook requests by result",
	}, []string{"result"})

	for _, c := range []prometheus.Collector{
		m.httpRequestsTotal, m.httpRequestDuration, m.transitionsTotal,
		m.broadcastsTotal, m.riskAnalysesTotal, m.riskFactor, m.webhookEventsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
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
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordBroadcast(outcome string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(outcome).Inc()
}

// RecordRisk counts an analysis; factor is observed only on success.
func (m *Metrics) RecordRisk(outcome string, factor float64) {
	if m == nil {
		return
	}
	m.riskAnalysesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.riskFactor.Observe(factor)
	}
}

func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(result).Inc()
}

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

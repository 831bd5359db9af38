package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issueservice"

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	issueOps        *prometheus.CounterVec
	dbPool          *prometheus.GaugeVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status_code"},
		),
		errorCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "HTTP errors by domain error code",
			},
			[]string{"method", "route", "code"},
		),
		issueOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "issues",
				Name:      "operations_total",
				Help:      "Issue lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		dbPool: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "pool_connections",
				Help:      "Number of database connections by state",
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.requestDuration,
		m.errorCount,
		m.issueOps,
		m.dbPool,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest observes a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordError counts a failed request by its error code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(method, route, code).Inc()
}

// RecordIssueOperation counts a lifecycle engine call; outcome is "ok" or an error code.
func (m *Metrics) RecordIssueOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.issueOps.WithLabelValues(operation, outcome).Inc()
}

// RecordDBPool samples pgxpool statistics.
func (m *Metrics) RecordDBPool(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	stats := pool.Stat()
	m.dbPool.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	m.dbPool.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	m.dbPool.WithLabelValues("max").Set(float64(stats.MaxConns()))
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus collectors for the HTTP API and the
// ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it. Tests build
// their own instance to avoid sharing global state.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	ledgerOps    *prometheus.CounterVec
	ledgerDur    *prometheus.HistogramVec
	sweepRuns    *prometheus.CounterVec
	sweepDone    prometheus.Counter
	events       *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parking",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parking",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		ledgerDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parking",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in ledger mutations including the store commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Completion sweep runs by result.",
		}, []string{"success"}),
		sweepDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parking",
			Subsystem: "sweep",
			Name:      "completed_reservations_total",
			Help:      "Reservations completed by the sweep.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Ledger events handed to the broker by result.",
		}, []string{"type", "success"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.ledgerOps, m.ledgerDur,
		m.sweepRuns, m.sweepDone,
		m.events,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveLedgerOp records one ledger mutation.
func (m *Metrics) ObserveLedgerOp(op, outcome string, d time.Duration) {
	m.ledgerOps.WithLabelValues(op, outcome).Inc()
	m.ledgerDur.WithLabelValues(op).Observe(d.Seconds())
}

// RecordSweep records one completion sweep run.
func (m *Metrics) RecordSweep(completed int, err error) {
	m.sweepRuns.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	m.sweepDone.Add(float64(completed))
}

// RecordEventPublish records one broker publish attempt.
func (m *Metrics) RecordEventPublish(eventType string, err error) {
	m.events.WithLabelValues(eventType, strconv.FormatBool(err == nil)).Inc()
}

// Middleware instruments every echo route. The route pattern, not the raw
// URL, is used as the path label to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			m.httpRequests.WithLabelValues(c.Request().Method, path, status).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

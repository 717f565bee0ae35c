// Package metrics registers the application's prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Generation metrics
	GenerationRequestsTotal *prometheus.CounterVec
	GenerationDuration      *prometheus.HistogramVec
	GenerationSpendUSD      *prometheus.CounterVec
	ProviderHealth          *prometheus.GaugeVec

	// Export metrics
	ExportJobsTotal   *prometheus.CounterVec
	ExportJobDuration *prometheus.HistogramVec

	// Ledger metrics
	LedgerWriteFailuresTotal prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reelforge"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		GenerationRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Total number of generation requests",
			},
			[]string{"provider", "capability", "status"},
		),
		GenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Generation request duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider", "capability"},
		),
		GenerationSpendUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "spend_usd_total",
				Help:      "Total spend in USD recorded against providers",
			},
			[]string{"provider", "model"},
		),
		ProviderHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "provider_healthy",
				Help:      "Provider health status (1 healthy, 0 unhealthy)",
			},
			[]string{"provider", "capability"},
		),
		ExportJobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "export",
				Name:      "jobs_total",
				Help:      "Total number of export jobs by terminal status",
			},
			[]string{"status"},
		),
		ExportJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "export",
				Name:      "job_duration_seconds",
				Help:      "Export job encode duration in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		LedgerWriteFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "write_failures_total",
				Help:      "Total number of swallowed ledger write failures",
			},
		),
	}
}

// RecordHTTPRequest records metrics for one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

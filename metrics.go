package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "article_extractor"

// Metrics holds the Prometheus collectors for fetching and batches.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttemptsTotal   *prometheus.CounterVec
	FetchDurationSeconds prometheus.Histogram
	RecordsTotal         *prometheus.CounterVec
	BatchesTotal         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fetch_attempts_total",
				Help:      "Article extraction attempts by outcome",
			},
			[]string{"outcome"},
		),
		FetchDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of single extraction attempts",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_total",
				Help:      "Records that reached a terminal status",
			},
			[]string{"status"},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Submitted batches by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeFetch(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(fetchOutcome(err)).Inc()
	m.FetchDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeRecord(status ArticleStatus) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeBatch(outcome string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrNoMeaningfulContent):
		return "no_content"
	case errors.Is(err, ErrServiceUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}

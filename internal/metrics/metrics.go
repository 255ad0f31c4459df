// Package metrics exposes Prometheus instrumentation for ingestion, the
// vector-store client and answer generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unihelp"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsExtracted *prometheus.CounterVec
	ChunksIndexed      prometheus.Counter
	StoreRequests      *prometheus.CounterVec
	StoreLatency       *prometheus.HistogramVec
	Answers            *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_extracted_total",
			Help:      "Documents read by the extractor, by outcome.",
		}, []string{"status"}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Points upserted into the vector store.",
		}),
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Vector-store HTTP requests by operation and outcome.",
		}, []string{"op", "status"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Vector-store request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Replies produced, by mode.",
		}, []string{"mode"}),
	}
	m.registry.MustRegister(m.DocumentsExtracted, m.ChunksIndexed, m.StoreRequests, m.StoreLatency, m.Answers)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Extracted counts one extraction attempt. status is "ok" or "failed".
func (m *Metrics) Extracted(status string) {
	if m == nil {
		return
	}
	m.DocumentsExtracted.WithLabelValues(status).Inc()
}

// Indexed adds n upserted points.
func (m *Metrics) Indexed(n int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(float64(n))
}

// ObserveStore records one store request.
func (m *Metrics) ObserveStore(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreRequests.WithLabelValues(op, status).Inc()
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Answered counts one answer in the given mode.
func (m *Metrics) Answered(mode string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(mode).Inc()
}

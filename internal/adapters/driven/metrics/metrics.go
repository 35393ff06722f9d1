// Package metrics records transform counters with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.Metrics = (*Metrics)(nil)

// Metrics provides observability for transform runs. Collectors live on
// a dedicated registry so repeated construction in one process is safe.
type Metrics struct {
	registry *prometheus.Registry

	// Documents by result: ingested, parse_error, conflict
	Documents *prometheus.CounterVec

	// Records handed to each sink by object type
	Records *prometheus.CounterVec

	// Idrefs that could not be resolved
	UnresolvedReferences prometheus.Counter

	// Duration of extraction passes
	PassDuration prometheus.Histogram
}

// New creates a Metrics instance with all transform metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ctitrans_documents_total",
			Help: "Total documents processed by result",
		}, []string{"result"}),

		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ctitrans_records_delivered_total",
			Help: "Total records delivered by sink and object type",
		}, []string{"sink", "object_type"}),

		UnresolvedReferences: factory.NewCounter(prometheus.CounterOpts{
			Name: "ctitrans_unresolved_references_total",
			Help: "Total references that could not be resolved",
		}),

		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctitrans_pass_duration_seconds",
			Help:    "Duration of extraction passes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// DocumentProcessed counts a document by result.
func (m *Metrics) DocumentProcessed(result string) {
	if m != nil {
		m.Documents.WithLabelValues(result).Inc()
	}
}

// RecordsDelivered counts records handed to a sink.
func (m *Metrics) RecordsDelivered(sink, objectType string, n int) {
	if m != nil && n > 0 {
		m.Records.WithLabelValues(sink, objectType).Add(float64(n))
	}
}

// ReferenceUnresolved counts an unresolved idref.
func (m *Metrics) ReferenceUnresolved() {
	if m != nil {
		m.UnresolvedReferences.Inc()
	}
}

// PassCompleted records the duration of a pass.
func (m *Metrics) PassCompleted(d time.Duration) {
	if m != nil {
		m.PassDuration.Observe(d.Seconds())
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path for the node_exporter
// textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

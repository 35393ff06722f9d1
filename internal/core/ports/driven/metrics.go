package driven

import "time"

// Metrics records run counters. Implementations must be safe for
// concurrent use; a nil Metrics is never passed to services.
type Metrics interface {
	// DocumentProcessed counts a document by result
	// ("ingested", "parse_error", "conflict").
	DocumentProcessed(result string)

	// RecordsDelivered counts records handed to a sink.
	RecordsDelivered(sink, objectType string, n int)

	// ReferenceUnresolved counts an idref that could not be resolved.
	ReferenceUnresolved()

	// PassCompleted records the duration of a pass.
	PassCompleted(d time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) DocumentProcessed(string)              {}
func (NopMetrics) RecordsDelivered(string, string, int) {}
func (NopMetrics) ReferenceUnresolved()                  {}
func (NopMetrics) PassCompleted(time.Duration)           {}

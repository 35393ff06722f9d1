package driven

import (
	"context"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// Sink receives extracted records.
// Each sink (text, bro, misp, etc.) declares the fields it consumes
// through its Profile and is delivered one object type at a time.
type Sink interface {
	// Name returns the sink name for logging and error reporting.
	Name() string

	// Profile returns the fields, constraints and accepted conditions
	// used when extracting records for this sink.
	Profile() domain.Profile

	// Deliver hands over the records of one object type.
	// Types are delivered in sorted order within a pass.
	// An error aborts the remainder of the run.
	Deliver(ctx context.Context, delivery *domain.Delivery) error

	// Close flushes buffered output and releases resources.
	Close() error
}

// PassObserver is implemented by sinks that need to know pass boundaries
// (headers, summaries, re-publishing whole packages).
type PassObserver interface {
	// BeginPass is called before the first delivery of a pass.
	BeginPass(ctx context.Context, pass *domain.PassInfo) error

	// EndPass is called after the last delivery of a pass.
	EndPass(ctx context.Context, pass *domain.PassInfo) error
}

// SinkFactory creates sinks from output configuration.
type SinkFactory interface {
	// Create returns a Sink for the given configuration.
	// Returns ErrUnsupportedType if the sink type is unknown.
	Create(ctx context.Context, cfg domain.OutputConfig) (Sink, error)

	// SupportedTypes returns all registered sink types.
	SupportedTypes() []string
}

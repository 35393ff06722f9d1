package driven

import (
	"context"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// DocumentSource produces raw threat-intelligence documents.
// Each source type (file, taxii) implements this interface.
// A source is restarted by creating a new one through the SourceFactory.
type DocumentSource interface {
	// Type returns the source type identifier.
	Type() string

	// Description returns a human-readable summary of the source,
	// used in output headers (e.g., "3 STIX packages from directory 'feeds'").
	Description() string

	// Documents streams every document of the source.
	// The document channel is closed when the source is exhausted or the
	// context is cancelled. A fatal error is sent on the error channel
	// before both channels are closed.
	Documents(ctx context.Context) (<-chan domain.RawDocument, <-chan error)

	// Close releases resources.
	Close() error
}

// SourceFactory creates document sources from configuration.
type SourceFactory interface {
	// Create returns a DocumentSource for the given configuration.
	// Returns ErrUnsupportedType if the source type is unknown.
	Create(ctx context.Context, cfg domain.SourceConfig) (DocumentSource, error)

	// SupportedTypes returns all registered source types.
	SupportedTypes() []string
}

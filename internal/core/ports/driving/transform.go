package driving

import (
	"context"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// TransformService runs complete transforms: source to sinks.
type TransformService interface {
	// Transform creates the configured source and sinks and runs every
	// pass. Sinks are closed before Transform returns.
	Transform(ctx context.Context, req domain.TransformRequest) (*domain.RunReport, error)

	// Status returns the state of the current or last run.
	Status() TransformStatus
}

// TransformStatus represents the state of a transform run.
type TransformStatus struct {
	// RunID identifies the run.
	RunID string

	// Running indicates if a run is currently in progress.
	Running bool

	// DocumentsProcessed is the count of documents processed so far.
	DocumentsProcessed int

	// PassesCompleted is the number of completed passes.
	PassesCompleted int

	// ErrorCount is the number of skipped documents and failed references.
	ErrorCount int
}

// ExtractService extracts records from documents supplied in memory.
// It backs the MCP tool and the HTTP API.
type ExtractService interface {
	// Extract runs the documents through the pipeline and returns the
	// flattened records per object type.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
}

// ExtractRequest describes an in-memory extraction.
type ExtractRequest struct {
	// Documents are the raw payloads to parse.
	Documents []domain.RawDocument

	// Profile names a configured sink profile (e.g., "text", "bro").
	// Ignored when Custom is set.
	Profile string

	// Custom overrides the named profile.
	Custom *domain.Profile

	// Scope selects indicator or observable extraction.
	Scope domain.Scope

	// PerDocument gives every document its own pass instead of one
	// aggregate pass over all of them.
	PerDocument bool

	// Sinks receive the same deliveries as the result collector, with
	// their own profiles. They are not closed by Extract.
	Sinks []driven.Sink
}

// ExtractResult holds the flattened records of an extraction.
type ExtractResult struct {
	// Records maps object type to flattened records.
	Records map[string][]map[string]string

	// Report summarises the run.
	Report *domain.RunReport
}

// ProfileService resolves sink profiles from built-in defaults and
// configuration overrides.
type ProfileService interface {
	// Profile returns the effective profile for a sink type.
	Profile(sink string) (domain.Profile, error)

	// Names returns every sink type with a profile, sorted.
	Names() []string
}

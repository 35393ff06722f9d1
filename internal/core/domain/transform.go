package domain

import (
	"fmt"
	"time"
)

// Scope selects which observables a pass extracts.
type Scope string

const (
	// ScopeIndicators extracts the observables of every leaf indicator.
	ScopeIndicators Scope = "indicators"

	// ScopeObservables extracts every indexed observable, expanding
	// compositions.
	ScopeObservables Scope = "observables"
)

// ParseScope converts a string to a Scope. Empty selects ScopeIndicators.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeIndicators:
		return ScopeIndicators, nil
	case ScopeObservables:
		return ScopeObservables, nil
	}
	return "", fmt.Errorf("%w: scope %q", ErrInvalidInput, s)
}

// ConflictPolicy decides what happens when an identifier is indexed twice.
type ConflictPolicy string

const (
	// ConflictReject rejects the package defining the duplicate.
	ConflictReject ConflictPolicy = "error"

	// ConflictOverwrite keeps the last definition.
	ConflictOverwrite ConflictPolicy = "overwrite"

	// ConflictKeepFirst keeps the first definition.
	ConflictKeepFirst ConflictPolicy = "keep-first"
)

// ParseConflictPolicy converts a string to a ConflictPolicy.
// Empty selects ConflictReject.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "", ConflictReject:
		return ConflictReject, nil
	case ConflictOverwrite:
		return ConflictOverwrite, nil
	case ConflictKeepFirst:
		return ConflictKeepFirst, nil
	}
	return "", fmt.Errorf("%w: conflict policy %q", ErrInvalidInput, s)
}

// RunOptions controls a transform run.
type RunOptions struct {
	// Aggregate ingests every document before a single extraction pass.
	Aggregate bool

	// Scope selects the observables extracted per pass.
	Scope Scope
}

// SourceConfig describes the document source of a run.
type SourceConfig struct {
	// Type is "file" or "taxii".
	Type string

	// Paths are files or directories (file sources).
	Paths []string

	// Recurse descends into subdirectories (file sources).
	Recurse bool

	// Watch keeps streaming new files until cancelled (file sources).
	Watch bool

	// Settings contains source-specific configuration (TAXII endpoint,
	// credentials, poll window).
	Settings map[string]string
}

// OutputConfig describes one sink of a run.
type OutputConfig struct {
	// Type identifies the sink (e.g., "text", "bro", "misp").
	Type string

	// Settings contains sink-specific configuration.
	Settings map[string]string
}

// TransformRequest is a complete run description.
type TransformRequest struct {
	Source  SourceConfig
	Outputs []OutputConfig
	Options RunOptions
}

// PassStats counts what one pass processed.
type PassStats struct {
	Documents   int
	Indicators  int
	Observables int
	Unresolved  int
	Cycles      int
	// ObjectTypes counts the extracted observables per object type.
	ObjectTypes map[string]int
}

// AddObservable counts one observable of objectType.
func (s *PassStats) AddObservable(objectType string) {
	if s.ObjectTypes == nil {
		s.ObjectTypes = make(map[string]int)
	}
	s.ObjectTypes[objectType]++
}

// PassInfo describes the pass a delivery belongs to.
type PassInfo struct {
	// Number is the 1-based pass number within the run.
	Number int

	// Aggregate is true when the pass covers every document of the run.
	Aggregate bool

	// Source is the description of the document source.
	Source string

	// Packages are the packages ingested for this pass.
	Packages []*Package

	// Metadata is the source metadata of the pass. For aggregate passes
	// it is the metadata of the first package.
	Metadata map[string]string

	Stats *PassStats
}

// RecordGroup holds the records extracted from one observable.
// Groups are never merged, even when they share an object type.
type RecordGroup struct {
	ObjectType string
	Observable *Observable
	// Indicator is the leaf indicator the observable was reached from,
	// nil for observable-scope passes.
	Indicator *Indicator
	// Metadata is the source metadata of the package that defined the
	// observable (or indicator).
	Metadata map[string]string
	Records  []Record
}

// Delivery is what a sink receives: all record groups of one object type.
type Delivery struct {
	ObjectType string
	Groups     []RecordGroup
	Metadata   map[string]string
	Pass       *PassInfo
}

// Records returns the records of every group, in order.
func (d *Delivery) Records() []Record {
	var out []Record
	for _, g := range d.Groups {
		out = append(out, g.Records...)
	}
	return out
}

// Len returns the number of records in the delivery.
func (d *Delivery) Len() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Records)
	}
	return n
}

// RunReport summarises a transform run.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Passes    int
	Documents int
	// Skipped counts documents that failed to parse or ingest.
	Skipped    int
	Unresolved int
	// Records counts delivered records per sink.
	Records map[string]int
}

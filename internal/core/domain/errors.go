package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source, sink, parser or relation type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrParse indicates a raw payload could not be parsed into a package.
	// Documents failing with this error are skipped, never fatal.
	ErrParse = errors.New("parse failed")

	// Resolution Errors.

	// ErrUnresolvedReference indicates an idref could not be found in the index.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrIdentifierConflict indicates an element identifier is already indexed.
	ErrIdentifierConflict = errors.New("identifier conflict")

	// ErrReferenceCycle indicates composite expansion revisited an element.
	ErrReferenceCycle = errors.New("reference cycle")

	// Delivery Errors.

	// ErrSinkFailed indicates a sink rejected a delivery. The run is aborted.
	ErrSinkFailed = errors.New("sink failed")

	// ErrSourceClosed indicates the document source has been closed.
	ErrSourceClosed = errors.New("source closed")

	// ErrRateLimited indicates a remote API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ConflictError reports an identifier that was defined twice.
type ConflictError struct {
	Category Category
	ID       string
	// Existing is the ID of the package that first defined the element.
	Existing string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %q already defined by package %q", ErrIdentifierConflict, e.Category, e.ID, e.Existing)
}

// Unwrap allows errors.Is(err, ErrIdentifierConflict).
func (e *ConflictError) Unwrap() error {
	return ErrIdentifierConflict
}

// CycleError reports a composite element reached again while it was
// still being expanded.
type CycleError struct {
	Category Category
	ID       string
}

func (e *CycleError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: anonymous %s composite", ErrReferenceCycle, e.Category)
	}
	return fmt.Sprintf("%s: %s %q", ErrReferenceCycle, e.Category, e.ID)
}

// Unwrap allows errors.Is(err, ErrReferenceCycle).
func (e *CycleError) Unwrap() error {
	return ErrReferenceCycle
}

// SinkError wraps a failure returned by a sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

// Unwrap returns both the sentinel and the underlying error.
func (e *SinkError) Unwrap() []error {
	return []error{ErrSinkFailed, e.Err}
}

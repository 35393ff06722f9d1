package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are distinct
func TestErrors_Existence(t *testing.T) {
	all := []error{
		ErrNotFound, ErrInvalidInput, ErrUnsupportedType, ErrParse,
		ErrUnresolvedReference, ErrIdentifierConflict, ErrReferenceCycle,
		ErrSinkFailed, ErrSourceClosed, ErrRateLimited,
	}
	for i, err := range all {
		assert.NotEmpty(t, err.Error())
		for j, other := range all {
			if i != j {
				assert.False(t, errors.Is(err, other), "%v is %v", err, other)
			}
		}
	}
}

func TestErrors_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("%w: sink %q", ErrUnsupportedType, "carrier-pigeon")
	assert.True(t, errors.Is(wrapped, ErrUnsupportedType))
	assert.Equal(t, `unsupported type: sink "carrier-pigeon"`, wrapped.Error())
}

func TestConflictError(t *testing.T) {
	err := &ConflictError{Category: CategoryIndicators, ID: "example:Indicator-1", Existing: "example:Package-1"}
	assert.ErrorIs(t, err, ErrIdentifierConflict)
	assert.Contains(t, err.Error(), `"example:Indicator-1" already defined by package "example:Package-1"`)

	var target *ConflictError
	assert.True(t, errors.As(fmt.Errorf("indexing: %w", err), &target))
	assert.Equal(t, "example:Package-1", target.Existing)
}

func TestCycleError(t *testing.T) {
	err := &CycleError{Category: CategoryObservables, ID: "example:Observable-1"}
	assert.ErrorIs(t, err, ErrReferenceCycle)
	assert.Contains(t, err.Error(), `"example:Observable-1"`)

	anonymous := &CycleError{Category: CategoryObservables}
	assert.Contains(t, anonymous.Error(), "anonymous")
}

func TestSinkError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &SinkError{Sink: "misp", Err: cause}

	assert.ErrorIs(t, err, ErrSinkFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "sink misp: connection refused", err.Error())
}

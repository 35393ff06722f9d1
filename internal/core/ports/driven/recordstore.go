package driven

import (
	"context"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// RecordStore persists extracted records per run.
type RecordStore interface {
	// SaveRun stores the run, replacing an existing row with the same ID.
	SaveRun(ctx context.Context, run domain.StoredRun) error

	// SavePass stores a pass of a run.
	SavePass(ctx context.Context, runID string, pass *domain.PassInfo) error

	// SaveGroups stores the records of groups atomically.
	SaveGroups(ctx context.Context, runID string, pass int, groups []domain.RecordGroup) error

	// ListRuns returns the stored runs, newest first.
	ListRuns(ctx context.Context) ([]domain.StoredRun, error)

	// ListRecords returns the records of a run in insertion order.
	// An empty objectType returns every type.
	ListRecords(ctx context.Context, runID, objectType string) ([]domain.StoredRecord, error)
}

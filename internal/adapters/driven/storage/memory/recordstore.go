package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore keeps records in memory, bounded to the most recent runs.
type RecordStore struct {
	mu      sync.RWMutex
	maxRuns int
	runs    map[string]domain.StoredRun
	passes  map[string]map[int]bool
	records map[string][]domain.StoredRecord
	nextID  int64
}

// NewRecordStore creates a store keeping at most maxRuns runs.
// A non-positive maxRuns keeps every run.
func NewRecordStore(maxRuns int) *RecordStore {
	return &RecordStore{
		maxRuns: maxRuns,
		runs:    make(map[string]domain.StoredRun),
		passes:  make(map[string]map[int]bool),
		records: make(map[string][]domain.StoredRecord),
	}
}

// SaveRun stores or updates a run, evicting the oldest runs over the limit.
func (s *RecordStore) SaveRun(_ context.Context, run domain.StoredRun) error {
	if run.ID == "" {
		return fmt.Errorf("%w: run ID is required", domain.ErrInvalidInput)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	if s.passes[run.ID] == nil {
		s.passes[run.ID] = make(map[int]bool)
	}
	for s.maxRuns > 0 && len(s.runs) > s.maxRuns {
		oldest := s.sortedRunsLocked()[len(s.runs)-1]
		delete(s.runs, oldest.ID)
		delete(s.passes, oldest.ID)
		delete(s.records, oldest.ID)
	}
	return nil
}

// SavePass records a pass of a known run.
func (s *RecordStore) SavePass(_ context.Context, runID string, pass *domain.PassInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	passes, ok := s.passes[runID]
	if !ok {
		return fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
	}
	passes[pass.Number] = true
	return nil
}

// SaveGroups stores the records of groups.
func (s *RecordStore) SaveGroups(_ context.Context, runID string, pass int, groups []domain.RecordGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.passes[runID][pass] {
		return fmt.Errorf("%w: pass %d of run %q", domain.ErrNotFound, pass, runID)
	}
	now := time.Now().UTC()
	for _, group := range groups {
		for _, rec := range group.Records {
			s.nextID++
			stored := domain.StoredRecord{
				ID:         s.nextID,
				RunID:      runID,
				Pass:       pass,
				ObjectType: group.ObjectType,
				Fields:     rec.Flatten(),
				Metadata:   group.Metadata,
				CreatedAt:  now,
			}
			if group.Observable != nil {
				stored.ObservableID = group.Observable.ID
			}
			if group.Indicator != nil {
				stored.IndicatorID = group.Indicator.ID
			}
			s.records[runID] = append(s.records[runID], stored)
		}
	}
	return nil
}

// ListRuns returns the stored runs, newest first.
func (s *RecordStore) ListRuns(context.Context) ([]domain.StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRunsLocked(), nil
}

// ListRecords returns the records of a run in insertion order.
func (s *RecordStore) ListRecords(_ context.Context, runID, objectType string) ([]domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StoredRecord
	for _, rec := range s.records[runID] {
		if objectType == "" || rec.ObjectType == objectType {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *RecordStore) sortedRunsLocked() []domain.StoredRun {
	runs := make([]domain.StoredRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

func group(objectType, value string) domain.RecordGroup {
	return domain.RecordGroup{
		ObjectType: objectType,
		Observable: &domain.Observable{ID: "example:Observable-" + value},
		Indicator:  &domain.Indicator{ID: "example:Indicator-1"},
		Records:    []domain.Record{{"value": {Value: value, Condition: domain.NoCondition}}},
	}
}

func TestRecordStore_SaveAndList(t *testing.T) {
	store := NewRecordStore(0)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "run-1"}))
	require.NoError(t, store.SavePass(ctx, "run-1", &domain.PassInfo{Number: 1}))
	require.NoError(t, store.SaveGroups(ctx, "run-1", 1, []domain.RecordGroup{
		group(domain.ObjectURI, "a"),
		group(domain.ObjectDomainName, "b"),
	}))

	all, err := store.ListRecords(ctx, "run-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, "example:Observable-a", all[0].ObservableID)
	assert.Equal(t, "example:Indicator-1", all[0].IndicatorID)
	assert.Equal(t, map[string]string{"value": "a"}, all[0].Fields)

	uris, err := store.ListRecords(ctx, "run-1", domain.ObjectURI)
	require.NoError(t, err)
	assert.Len(t, uris, 1)

	none, err := store.ListRecords(ctx, "unknown", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordStore_Errors(t *testing.T) {
	store := NewRecordStore(0)
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveRun(ctx, domain.StoredRun{}), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.SavePass(ctx, "run-1", &domain.PassInfo{Number: 1}), domain.ErrNotFound)

	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "run-1"}))
	err := store.SaveGroups(ctx, "run-1", 2, []domain.RecordGroup{group(domain.ObjectURI, "a")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordStore_EvictsOldestRuns(t *testing.T) {
	store := NewRecordStore(2)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)
}

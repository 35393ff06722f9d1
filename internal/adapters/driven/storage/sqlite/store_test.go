package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "nested", DefaultFile))
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

func addressGroup(observableID, indicatorID string, values ...string) domain.RecordGroup {
	g := domain.RecordGroup{
		ObjectType: domain.ObjectAddress,
		Observable: &domain.Observable{ID: observableID},
		Metadata:   map[string]string{"filename": "a.xml"},
	}
	if indicatorID != "" {
		g.Indicator = &domain.Indicator{ID: indicatorID}
	}
	for _, v := range values {
		g.Records = append(g.Records, domain.Record{"address_value": {Value: v, Condition: "Equals"}})
	}
	return g
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	store := setupTestStore(t)

	_, err := os.Stat(store.Path())
	assert.NoError(t, err)

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestNewStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(context.Background(), domain.StoredRun{ID: "run-1"}))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

// ==================== Record Tests ====================

func TestStore_SaveAndListRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	store.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "run-1", Source: "feed"}))
	require.NoError(t, store.SavePass(ctx, "run-1", &domain.PassInfo{Number: 1, Metadata: map[string]string{"k": "v"}}))
	require.NoError(t, store.SaveGroups(ctx, "run-1", 1, []domain.RecordGroup{
		addressGroup("example:Observable-1", "example:Indicator-1", "10.0.0.1", "10.0.0.2"),
		{ObjectType: domain.ObjectURI, Records: []domain.Record{{"value": {Value: "http://a", Condition: domain.NoCondition}}}},
	}))

	all, err := store.ListRecords(ctx, "run-1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	first := all[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, 1, first.Pass)
	assert.Equal(t, "example:Observable-1", first.ObservableID)
	assert.Equal(t, "example:Indicator-1", first.IndicatorID)
	assert.Equal(t, map[string]string{"address_value": "10.0.0.1", "address_value_condition": "Equals"}, first.Fields)
	assert.Equal(t, map[string]string{"filename": "a.xml"}, first.Metadata)

	uris, err := store.ListRecords(ctx, "run-1", domain.ObjectURI)
	require.NoError(t, err)
	require.Len(t, uris, 1)
	assert.Empty(t, uris[0].ObservableID)
	assert.Nil(t, uris[0].Metadata)
	assert.Equal(t, map[string]string{"value": "http://a"}, uris[0].Fields)
}

func TestStore_SaveGroupsRequiresPass(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "run-1"}))
	err := store.SaveGroups(ctx, "run-1", 7, []domain.RecordGroup{addressGroup("o", "", "10.0.0.1")})
	assert.Error(t, err)

	records, err := store.ListRecords(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SaveRunValidation(t *testing.T) {
	store := setupTestStore(t)
	err := store.SaveRun(context.Background(), domain.StoredRun{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "old", StartedAt: base}))
	require.NoError(t, store.SaveRun(ctx, domain.StoredRun{ID: "new", StartedAt: base.Add(time.Hour)}))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

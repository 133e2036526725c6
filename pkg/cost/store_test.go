package cost

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	day1 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return []Record{
		{ID: "r1", Timestamp: day1, Operation: "ai_editor", TokensUsed: 100, EstimatedCost: 0.001, Success: true, RunID: "run-1", WorkflowID: "A", CoordinationID: "c1"},
		{ID: "r2", Timestamp: day1, Operation: "ai_analyst", TokensUsed: 200, EstimatedCost: 0.002, Success: false, WorkflowID: "B", CoordinationID: "c1"},
		{ID: "r3", Timestamp: day2, Operation: "ai_editor", TokensUsed: 300, EstimatedCost: 0.003, Success: true, WorkflowID: "A", CoordinationID: "c2"},
	}
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	for _, r := range sampleRecords() {
		require.NoError(t, store.Save(ctx, r))
	}

	all, err := store.IterAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID)
	assert.Equal(t, "run-1", all[0].RunID)
	assert.Equal(t, "r3", all[2].ID)

	day1, err := store.IterByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, day1, 2)
	for _, r := range day1 {
		assert.Equal(t, "2025-06-01", r.Date())
	}

	// A record stamped late evening in a western zone belongs to the
	// next UTC day; every store buckets it identically.
	late := Record{
		ID: "r4", Operation: "ai_editor", TokensUsed: 50, Success: true,
		Timestamp: time.Date(2025, 6, 2, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*60*60)),
	}
	require.NoError(t, store.Save(ctx, late))
	nextDay, err := store.IterByDate(ctx, "2025-06-03")
	require.NoError(t, err)
	require.Len(t, nextDay, 1)
	assert.Equal(t, "r4", nextDay[0].ID)

	coord, err := store.IterByCoordination(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, coord, 2)

	none, err := store.IterByDate(ctx, "1999-01-01")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.Close())
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStoreContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "usage.jsonl")
	runStoreContract(t, NewFileStore(path))
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.jsonl"))
	all, err := store.IterAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.jsonl")

	first := NewFileStore(path)
	for _, r := range sampleRecords() {
		require.NoError(t, first.Save(ctx, r))
	}

	second := NewFileStore(path)
	all, err := second.IterAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

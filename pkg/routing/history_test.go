package routing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecordEMA(t *testing.T) {
	h := NewHistory(nil, nil)

	h.Record("ai_editor", true, 10*time.Second, 1000)
	s := h.Stats("ai_editor")
	require.NotNil(t, s)
	assert.Equal(t, 1, s.TotalExecutions)
	assert.InDelta(t, 10.0, s.AverageTime, 1e-9)
	assert.InDelta(t, 1000.0, s.AverageTokens, 1e-9)
	assert.InDelta(t, 1.0, s.SuccessRate, 1e-9)

	h.Record("ai_editor", false, 20*time.Second, 2000)
	s = h.Stats("ai_editor")
	assert.Equal(t, 2, s.TotalExecutions)
	assert.Equal(t, 1, s.SuccessfulExecutions)
	assert.InDelta(t, 10*0.9+20*0.1, s.AverageTime, 1e-9)
	assert.InDelta(t, 1000*0.9+2000*0.1, s.AverageTokens, 1e-9)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
}

func TestHistoryStatsReturnsCopy(t *testing.T) {
	h := NewHistory(nil, nil)
	h.Record("code_fixers", true, time.Second, 0)

	s := h.Stats("code_fixers")
	s.TotalExecutions = 99

	assert.Equal(t, 1, h.Stats("code_fixers").TotalExecutions)
	assert.Nil(t, h.Stats("unknown"))
}

func TestFileHistoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "adapters.json")
	store := NewFileHistoryStore(path)

	// Missing file loads empty.
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	h := NewHistory(store, nil)
	h.Record("pytest_runner", true, 30*time.Second, 0)
	h.Record("ai_editor", false, time.Minute, 5000)

	reloaded := NewHistory(store, nil)
	s := reloaded.Stats("pytest_runner")
	require.NotNil(t, s)
	assert.Equal(t, 1, s.TotalExecutions)
	assert.InDelta(t, 1.0, s.SuccessRate, 1e-9)

	s = reloaded.Stats("ai_editor")
	require.NotNil(t, s)
	assert.InDelta(t, 0.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 5000.0, s.AverageTokens, 1e-9)
}

func TestHistoryCorruptStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adapters.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	h := NewHistory(NewFileHistoryStore(path), nil)
	assert.Nil(t, h.Stats("ai_editor"))
}

package routing

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for rolling averages.
const emaAlpha = 0.1

// AdapterStats is the rolling execution history for one adapter.
type AdapterStats struct {
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	AverageTime          float64 `json:"average_time"`
	AverageTokens        float64 `json:"average_tokens"`
	SuccessRate          float64 `json:"success_rate"`
}

// HistoryStore persists adapter stats. Losing the history must not
// change routing correctness, only its tuning.
type HistoryStore interface {
	Load() (map[string]*AdapterStats, error)
	Save(stats map[string]*AdapterStats) error
}

// History tracks per-adapter execution statistics, updated after each
// step via an exponential moving average. Updates are serialized;
// persistence is best-effort.
type History struct {
	mu     sync.Mutex
	stats  map[string]*AdapterStats
	store  HistoryStore
	logger *slog.Logger
}

// NewHistory creates a history, loading prior stats from the store
// when one is given. Load failures start the history empty.
func NewHistory(store HistoryStore, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	h := &History{
		stats:  make(map[string]*AdapterStats),
		store:  store,
		logger: logger,
	}
	if store != nil {
		loaded, err := store.Load()
		if err != nil {
			logger.Warn("loading performance history failed, starting empty", "error", err)
		} else if loaded != nil {
			h.stats = loaded
		}
	}
	return h
}

// Record folds one execution into the adapter's rolling statistics and
// persists best-effort. A persistence failure never fails the step.
func (h *History) Record(adapterName string, success bool, duration time.Duration, tokens int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.stats[adapterName]
	if !ok {
		s = &AdapterStats{}
		h.stats[adapterName] = s
	}

	s.TotalExecutions++
	if success {
		s.SuccessfulExecutions++
	}
	seconds := duration.Seconds()
	if s.TotalExecutions == 1 {
		s.AverageTime = seconds
		s.AverageTokens = float64(tokens)
	} else {
		s.AverageTime = s.AverageTime*(1-emaAlpha) + seconds*emaAlpha
		s.AverageTokens = s.AverageTokens*(1-emaAlpha) + float64(tokens)*emaAlpha
	}
	s.SuccessRate = float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)

	if h.store != nil {
		if err := h.store.Save(h.snapshotLocked()); err != nil {
			h.logger.Warn("persisting performance history failed", "adapter", adapterName, "error", err)
		}
	}
}

// Stats returns a copy of the stats for one adapter, nil when the
// adapter has no history yet.
func (h *History) Stats(adapterName string) *AdapterStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stats[adapterName]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

// snapshotLocked copies the stats map. Caller holds the lock.
func (h *History) snapshotLocked() map[string]*AdapterStats {
	snapshot := make(map[string]*AdapterStats, len(h.stats))
	for name, s := range h.stats {
		copied := *s
		snapshot[name] = &copied
	}
	return snapshot
}

// FileHistoryStore persists the history as a single JSON object
// mapping adapter name to stats.
type FileHistoryStore struct {
	path string
}

// NewFileHistoryStore creates a file-backed history store.
func NewFileHistoryStore(path string) *FileHistoryStore {
	return &FileHistoryStore{path: path}
}

// Load implements HistoryStore. A missing file yields an empty map.
func (s *FileHistoryStore) Load() (map[string]*AdapterStats, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*AdapterStats{}, nil
		}
		return nil, err
	}
	stats := make(map[string]*AdapterStats)
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Save implements HistoryStore. The file is replaced atomically via a
// temp-file rename so a crashed writer cannot corrupt the history.
func (s *FileHistoryStore) Save(stats map[string]*AdapterStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

package cost

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/tombee/dispatch/pkg/errors"
)

// FileStore appends records as line-delimited JSON. Appends are
// serialized with a mutex; O_APPEND keeps concurrent processes from
// interleaving within a line.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store. The file is created on
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encoding cost record")
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating cost log directory")
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening cost log")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "appending cost record")
	}
	return nil
}

// IterAll implements Store. A missing file yields no records. Lines
// that fail to decode are skipped so one corrupt entry cannot poison
// the whole log.
func (s *FileStore) IterAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening cost log")
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading cost log")
	}
	return records, nil
}

// IterByDate implements Store.
func (s *FileStore) IterByDate(ctx context.Context, date string) ([]Record, error) {
	all, err := s.IterAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.Date() == date {
			out = append(out, r)
		}
	}
	return out, nil
}

// IterByCoordination implements Store.
func (s *FileStore) IterByCoordination(ctx context.Context, coordinationID string) ([]Record, error) {
	all, err := s.IterAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.CoordinationID == coordinationID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

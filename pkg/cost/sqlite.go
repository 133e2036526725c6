// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cost

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/dispatch/pkg/errors"
)

// Compile-time interface assertion.
var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	operation TEXT NOT NULL,
	tokens_used INTEGER NOT NULL,
	estimated_cost REAL NOT NULL,
	model TEXT,
	success INTEGER NOT NULL,
	run_id TEXT,
	workflow_id TEXT,
	coordination_id TEXT,
	phase_id TEXT,
	adapter_name TEXT
);
CREATE INDEX IF NOT EXISTS idx_usage_date ON usage_records (substr(timestamp, 1, 10));
CREATE INDEX IF NOT EXISTS idx_usage_coordination ON usage_records (coordination_id);
`

// SQLiteStore persists usage records in a SQLite database for
// long-lived installations where the line-delimited log grows
// unwieldy.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening cost database")
	}
	// modernc sqlite serializes writes through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating cost database")
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records
		(id, timestamp, operation, tokens_used, estimated_cost, model,
		 success, run_id, workflow_id, coordination_id, phase_id, adapter_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		record.Operation,
		record.TokensUsed,
		record.EstimatedCost,
		record.Model,
		boolToInt(record.Success),
		record.RunID,
		record.WorkflowID,
		record.CoordinationID,
		record.PhaseID,
		record.AdapterName,
	)
	if err != nil {
		return errors.Wrap(err, "inserting cost record")
	}
	return nil
}

// IterAll implements Store.
func (s *SQLiteStore) IterAll(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT id, timestamp, operation, tokens_used,
		estimated_cost, model, success, run_id, workflow_id,
		coordination_id, phase_id, adapter_name
		FROM usage_records ORDER BY rowid`)
}

// IterByDate implements Store. Dates compare against the stored UTC
// timestamps, matching Record.Date.
func (s *SQLiteStore) IterByDate(ctx context.Context, date string) ([]Record, error) {
	return s.query(ctx, `SELECT id, timestamp, operation, tokens_used,
		estimated_cost, model, success, run_id, workflow_id,
		coordination_id, phase_id, adapter_name
		FROM usage_records
		WHERE substr(timestamp, 1, 10) = ? ORDER BY rowid`, date)
}

// IterByCoordination implements Store.
func (s *SQLiteStore) IterByCoordination(ctx context.Context, coordinationID string) ([]Record, error) {
	return s.query(ctx, `SELECT id, timestamp, operation, tokens_used,
		estimated_cost, model, success, run_id, workflow_id,
		coordination_id, phase_id, adapter_name
		FROM usage_records
		WHERE coordination_id = ? ORDER BY rowid`, coordinationID)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...interface{}) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying cost records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ts string
		var success int
		if err := rows.Scan(&r.ID, &ts, &r.Operation, &r.TokensUsed,
			&r.EstimatedCost, &r.Model, &success, &r.RunID,
			&r.WorkflowID, &r.CoordinationID, &r.PhaseID,
			&r.AdapterName); err != nil {
			return nil, errors.Wrap(err, "scanning cost record")
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errors.Wrap(err, "parsing cost record timestamp")
		}
		r.Timestamp = parsed
		r.Success = success != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating cost records")
	}
	return records, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package jobstore is the append-only audit log for completed jobs
// (github.com/mattn/go-sqlite3). It is never read back during a run:
// spec.md's Non-goals exclude persisting job state across client restarts,
// so this table exists purely as a record of what happened, not a resume
// point.
package jobstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome is the terminal state of a job run.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Aborted   Outcome = "aborted"
)

// JobRecord is one audit-log row, written exactly once after a job
// terminates by any path (spec.md §3 JobRecord).
type JobRecord struct {
	JobID        string
	InputPath    string
	OutputPath   string
	NodeCount    int
	SegmentCount int
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      Outcome
	ErrorKind    string // empty unless Outcome == Aborted
}

// Store wraps a single SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures the
// jobs table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open job history db: %w", err)
	}

	const createTable = `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id        TEXT PRIMARY KEY,
		input_path    TEXT,
		output_path   TEXT,
		node_count    INTEGER,
		segment_count INTEGER,
		started_at    TIMESTAMP,
		finished_at   TIMESTAMP,
		outcome       TEXT,
		error_kind    TEXT
	);`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordJob inserts one row for a terminated job. Called once, from the
// client's top-level defer, regardless of outcome.
func (s *Store) RecordJob(r JobRecord) error {
	const stmt = `
	INSERT OR REPLACE INTO jobs
	(job_id, input_path, output_path, node_count, segment_count, started_at, finished_at, outcome, error_kind)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.Exec(stmt,
		r.JobID, r.InputPath, r.OutputPath, r.NodeCount, r.SegmentCount,
		r.StartedAt, r.FinishedAt, string(r.Outcome), r.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", r.JobID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

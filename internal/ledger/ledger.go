// Package ledger records windchime runs in a SQLite database.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	skipped     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS demux_samples (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	sample_id TEXT NOT NULL,
	pairs     INTEGER NOT NULL,
	PRIMARY KEY (run_id, sample_id)
);`

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Ledger is an open run database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Run is a run being recorded.
type Run struct {
	ID string
	l  *Ledger
}

// StartRun records the start of a command. An empty id gets a new UUID.
func (l *Ledger) StartRun(id, command, detail string) (*Run, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := l.db.Exec(`INSERT INTO runs (id, command, started_at, status, detail) VALUES (?, ?, ?, ?, ?)`,
		id, command, time.Now().UnixNano(), StatusRunning, detail)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, l: l}, nil
}

// Finish marks the run completed, or failed with runErr.
func (r *Run) Finish(runErr error) error {
	status, detail := StatusCompleted, ""
	if runErr != nil {
		status, detail = StatusFailed, runErr.Error()
	}
	_, err := r.l.db.Exec(`UPDATE runs SET finished_at = ?, status = ?,
		detail = CASE WHEN ? = '' THEN detail ELSE ? END WHERE id = ?`,
		time.Now().UnixNano(), status, detail, detail, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordStep stores the outcome of one pipeline step.
func (r *Run) RecordStep(name string, skipped bool, stepErr error, elapsed time.Duration) error {
	status := StatusCompleted
	switch {
	case skipped:
		status = StatusSkipped
	case stepErr != nil:
		status = StatusFailed
	}
	_, err := r.l.db.Exec(`INSERT INTO steps (run_id, name, skipped, status, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		r.ID, name, skipped, status, elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// RecordSamples stores the pairs assigned to each sample.
func (r *Run) RecordSamples(samples []string, pairs []int64) (retErr error) {
	if len(samples) != len(pairs) {
		return fmt.Errorf("%d samples but %d counts", len(samples), len(pairs))
	}
	tx, err := r.l.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for i, sample := range samples {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO demux_samples (run_id, sample_id, pairs) VALUES (?, ?, ?)`,
			r.ID, sample, pairs[i]); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID         string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Detail     string
}

// Runs lists the most recent runs first. limit <= 0 lists all.
func (l *Ledger) Runs(limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query(`SELECT id, command, started_at, finished_at, status, detail FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var runs []RunInfo
	for rows.Next() {
		var (
			info     RunInfo
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&info.ID, &info.Command, &started, &finished, &info.Status, &info.Detail); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		info.StartedAt = time.Unix(0, started)
		if finished.Valid {
			info.FinishedAt = time.Unix(0, finished.Int64)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// StepInfo is one row of the steps table.
type StepInfo struct {
	Name     string
	Skipped  bool
	Status   string
	Duration time.Duration
}

// Steps lists the steps of a run in execution order.
func (l *Ledger) Steps(runID string) ([]StepInfo, error) {
	rows, err := l.db.Query(`SELECT name, skipped, status, duration_ms FROM steps WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("select steps: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var steps []StepInfo
	for rows.Next() {
		var (
			s  StepInfo
			ms int64
		)
		if err := rows.Scan(&s.Name, &s.Skipped, &s.Status, &ms); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// SampleCount is one row of the demux_samples table.
type SampleCount struct {
	SampleID string
	Pairs    int64
}

// Samples lists the per-sample counts of a demux run.
func (l *Ledger) Samples(runID string) ([]SampleCount, error) {
	rows, err := l.db.Query(`SELECT sample_id, pairs FROM demux_samples WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var samples []SampleCount
	for rows.Next() {
		var s SampleCount
		if err := rows.Scan(&s.SampleID, &s.Pairs); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

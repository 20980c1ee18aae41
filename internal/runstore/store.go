// internal/runstore/store.go
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"replaylab/internal/replay"
)

// Store wraps the SQLite run-tracking database
type Store struct {
	db *sql.DB
}

// Open creates or opens the run database at the given path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		fork_step INTEGER NOT NULL,
		scheduler TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		branch_count INTEGER NOT NULL,
		result TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS branch_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_branch_attempts_run ON branch_attempts(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record in pending state
func (s *Store) CreateRun(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunPending
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, conversation_id, fork_step, scheduler, status, branch_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ConversationID, run.ForkStep, run.Scheduler, run.Status, run.BranchCount,
		run.CreatedAt.Unix())
	return err
}

// SetRunStatus updates the status of a run
func (s *Store) SetRunStatus(runID, status string) error {
	_, err := s.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	return err
}

// CompleteRun marks a run finished and stores its comparison result
func (s *Store) CompleteRun(runID, status string, result *replay.ComparisonResult) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal comparison result: %w", err)
		}
	}

	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, result = ?, completed_at = ? WHERE id = ?`,
		status, string(resultJSON), time.Now().Unix(), runID)
	return err
}

// RecordAttempt stores one branch execution attempt
func (s *Store) RecordAttempt(runID string, attempt int, result *replay.BranchResult) error {
	_, err := s.db.Exec(`
		INSERT INTO branch_attempts (run_id, branch_name, attempt, status, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, result.BranchName, attempt, result.Status, result.DurationMs, result.Error,
		time.Now().Unix())
	return err
}

// GetRun fetches a run record by ID
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, fork_step, scheduler, status, branch_count, created_at, completed_at
		FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetRunResult fetches the stored comparison result for a run. Returns nil
// when the run does not exist or has no stored result.
func (s *Store) GetRunResult(runID string) (*replay.ComparisonResult, error) {
	var resultJSON sql.NullString
	err := s.db.QueryRow(`SELECT result FROM runs WHERE id = ?`, runID).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !resultJSON.Valid || resultJSON.String == "" {
		return nil, nil
	}

	var result replay.ComparisonResult
	if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
		return nil, fmt.Errorf("unmarshal comparison result: %w", err)
	}
	return &result, nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, conversation_id, fork_step, scheduler, status, branch_count, created_at, completed_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListAttempts returns all attempts for a run in insertion order
func (s *Store) ListAttempts(runID string) ([]*BranchAttempt, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, branch_name, attempt, status, duration_ms, error, created_at
		FROM branch_attempts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*BranchAttempt
	for rows.Next() {
		var a BranchAttempt
		var errStr sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.RunID, &a.BranchName, &a.Attempt, &a.Status, &a.DurationMs, &errStr, &createdAt); err != nil {
			return nil, err
		}
		a.Error = errStr.String
		a.CreatedAt = time.Unix(createdAt, 0)
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdAt int64
	var completedAt sql.NullInt64

	err := row.Scan(&run.ID, &run.ConversationID, &run.ForkStep, &run.Scheduler,
		&run.Status, &run.BranchCount, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}
	return &run, nil
}

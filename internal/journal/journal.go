// Package journal keeps a SQLite history of synchronization passes.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded synchronization pass.
type Run struct {
	ID         string     `json:"id"`
	Partition  string     `json:"partition"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dryRun"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Unchanged  int        `json:"unchanged"`
	Conflicts  int        `json:"conflicts"`
	Skipped    int        `json:"skipped"`
	Errors     []RunError `json:"errors,omitempty"`
}

// RunError is a per-task failure recorded with a run. TaskID is zero when the
// failure was not tied to a task.
type RunError struct {
	TaskID  int    `json:"taskId,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Journal is an open history database. It is safe for concurrent use.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the journal at path, creating parent directories.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

// Close releases the database. Close is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record stores run and its errors in one transaction. A run without an ID
// gets a UUID v7, which is written back into run.
func (j *Journal) Record(ctx context.Context, run *Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}
	if run.ID == "" {
		run.ID = newRunID()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, partition, mode, dry_run, started_at, finished_at,
			created, updated, unchanged, conflicts, skipped, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Partition, run.Mode, boolToInt(run.DryRun),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Created, run.Updated, run.Unchanged, run.Conflicts, run.Skipped, len(run.Errors))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, re := range run.Errors {
		var taskID any
		if re.TaskID > 0 {
			taskID = re.TaskID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_errors (run_id, seq, task_id, file, message) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, taskID, re.File, re.Message); err != nil {
			return fmt.Errorf("insert run error: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first. An empty partition matches
// every partition.
func (j *Journal) Recent(ctx context.Context, partition string, limit int) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, partition, mode, dry_run, started_at, finished_at,
			created, updated, unchanged, conflicts, skipped
		FROM runs
		WHERE ? = '' OR partition = ?
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, partition, partition, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			dryRun            int
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Partition, &r.Mode, &dryRun, &started, &finished,
			&r.Created, &r.Updated, &r.Unchanged, &r.Conflicts, &r.Skipped); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.DryRun = dryRun != 0
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		errs, err := j.runErrors(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Errors = errs
	}
	return runs, nil
}

func (j *Journal) runErrors(ctx context.Context, runID string) ([]RunError, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT task_id, file, message FROM run_errors WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run errors: %w", err)
	}
	defer rows.Close()
	var out []RunError
	for rows.Next() {
		var (
			re     RunError
			taskID sql.NullInt64
			file   sql.NullString
		)
		if err := rows.Scan(&taskID, &file, &re.Message); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		re.TaskID = int(taskID.Int64)
		re.File = file.String
		out = append(out, re)
	}
	return out, rows.Err()
}

// newRunID generates a UUID v7 so ids sort by creation time.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

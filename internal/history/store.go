// Package history keeps a SQLite log of dispatched test runs and of the
// result summaries they produced.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/specrunner/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Dispatch is one run handed to the terminal or debugger.
type Dispatch struct {
	RunID     string
	File      string
	Framework string
	Mode      string
	Command   string
	StartedAt time.Time
}

// ResultSummary is the outcome of one finalized run for one file.
type ResultSummary struct {
	ID          int64
	RunID       string
	File        string
	Passed      int
	Failed      int
	Pending     int
	FailedLines []int
	RecordedAt  time.Time
}

// Store manages the history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the database at dbPath. ":memory:"
// opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry retries statements that fail because another process holds
// the database lock.
func execWithRetry(db *sql.DB, statement string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(statement)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordDispatch logs that run was started in mode with commandLine.
func (s *Store) RecordDispatch(ctx context.Context, run models.RunRecord, mode models.Mode, commandLine string) error {
	started := run.Started
	if started.IsZero() {
		started = time.Now()
	}

	query := `INSERT OR REPLACE INTO runs (run_id, file, framework, mode, command, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.File,
		models.DetectFramework(run.File).String(),
		mode.String(),
		commandLine,
		started.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordResults logs the counts and failing lines of set.
func (s *Store) RecordResults(ctx context.Context, runID, file string, set *models.FileResultSet) error {
	if set == nil {
		return nil
	}

	passed, failed, pending := set.Counts()

	failedLines := set.FailedLines()

	failedJSON := "[]"
	if len(failedLines) > 0 {
		data, err := json.Marshal(failedLines)
		if err != nil {
			return fmt.Errorf("marshal failed lines: %w", err)
		}
		failedJSON = string(data)
	}

	query := `INSERT INTO run_results (run_id, file, passed, failed, pending, failed_lines, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, runID, file, passed, failed, pending, failedJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert run results: %w", err)
	}
	return nil
}

// RecentDispatches returns up to limit runs, newest first. A non-empty file
// restricts the listing to that file.
func (s *Store) RecentDispatches(ctx context.Context, file string, limit int) ([]Dispatch, error) {
	query := `SELECT run_id, file, framework, mode, command, started_at FROM runs`
	args := []interface{}{}
	if file != "" {
		query += ` WHERE file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY started_at DESC, run_id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var dispatches []Dispatch
	for rows.Next() {
		var d Dispatch
		if err := rows.Scan(&d.RunID, &d.File, &d.Framework, &d.Mode, &d.Command, &d.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}

// RecentResults returns up to limit result summaries, newest first. A
// non-empty file restricts the listing to that file.
func (s *Store) RecentResults(ctx context.Context, file string, limit int) ([]ResultSummary, error) {
	query := `SELECT id, run_id, file, passed, failed, pending, failed_lines, recorded_at FROM run_results`
	args := []interface{}{}
	if file != "" {
		query += ` WHERE file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	var summaries []ResultSummary
	for rows.Next() {
		var r ResultSummary
		var failedJSON string
		if err := rows.Scan(&r.ID, &r.RunID, &r.File, &r.Passed, &r.Failed, &r.Pending, &failedJSON, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan run results: %w", err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &r.FailedLines); err != nil {
			return nil, fmt.Errorf("unmarshal failed lines: %w", err)
		}
		summaries = append(summaries, r)
	}
	return summaries, rows.Err()
}

// Prune deletes history recorded before cutoff and returns the number of
// rows removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, statement := range []string{
		`DELETE FROM runs WHERE started_at < ?`,
		`DELETE FROM run_results WHERE recorded_at < ?`,
	} {
		result, err := s.db.ExecContext(ctx, statement, cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("prune history: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune history: %w", err)
		}
		total += n
	}
	return total, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

// Package db records generation runs so the CLI and the daemon can report
// what happened.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
)

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_failure_id START 1;`,

		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP,
			documents INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_namespace ON runs (namespace)`,

		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			path TEXT NOT NULL,
			error TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures (run_id)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Run operations ---

type Run struct {
	ID         string
	Namespace  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Documents  int
	Failures   int
	Error      string
}

// StartRun opens a run for namespace and returns its id.
func (db *DB) StartRun(namespace string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, namespace, started_at) VALUES (?, ?, ?)`,
		id, namespace, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run. runErr is the error that ended it, if any.
func (db *DB) FinishRun(id string, documents, failures int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, documents = ?, failures = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), documents, failures, msg, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// RecordFailure stores a document that could not be written during a run.
func (db *DB) RecordFailure(runID, path string, failure error) error {
	_, err := db.conn.Exec(
		`INSERT INTO failures (id, run_id, path, error) VALUES (nextval('seq_failure_id'), ?, ?, ?)`,
		runID, path, failure.Error(),
	)
	if err != nil {
		return fmt.Errorf("inserting failure: %w", err)
	}
	return nil
}

func (db *DB) GetRun(id string) (*Run, error) {
	var r Run
	var msg sql.NullString
	err := db.conn.QueryRow(
		`SELECT id, namespace, started_at, finished_at, documents, failures, error FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Namespace, &r.StartedAt, &r.FinishedAt, &r.Documents, &r.Failures, &msg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Error = msg.String
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, namespace, started_at, finished_at, documents, failures, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.Namespace, &r.StartedAt, &r.FinishedAt, &r.Documents, &r.Failures, &msg); err != nil {
			return nil, err
		}
		r.Error = msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Failure operations ---

type Failure struct {
	Path  string
	Error string
}

func (db *DB) ListFailures(runID string) ([]Failure, error) {
	rows, err := db.conn.Query(`SELECT path, error FROM failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Path, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

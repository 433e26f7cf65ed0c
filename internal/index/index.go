// Package index is an optional, schema-light persistence layer for job
// run history. It sits outside the archive processing core (spec.md
// §1 Non-goals: "specifying the index schema") but gives archivectl
// something to record completed runs against, grounded on the
// teacher's internal/db package (same driver, same migrate-on-open
// idiom, far fewer tables).
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Index wraps a *sql.DB over modernc.org/sqlite.
type Index struct {
	SQL *sql.DB
}

// Open creates (or reuses) the sqlite file at path and migrates it.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	idx := &Index{SQL: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) Close() error { return i.SQL.Close() }

func (i *Index) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mode TEXT NOT NULL,
			storage_name TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			done_count INTEGER NOT NULL DEFAULT 0,
			done_size INTEGER NOT NULL DEFAULT 0,
			skipped_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_storage ON runs(storage_name, started_at);`,
	}
	for _, s := range stmts {
		if _, err := i.SQL.Exec(s); err != nil {
			return fmt.Errorf("index: migrate: %w", err)
		}
	}
	return nil
}

// RunSummary is what RecordRun persists for one completed Driver run.
type RunSummary struct {
	Mode         string
	StorageName  string
	StartedAt    time.Time
	FinishedAt   time.Time
	DoneCount    uint64
	DoneSize     uint64
	SkippedCount uint64
	ErrorCount   uint64
	Err          error
}

// RecordRun inserts one row per completed run. Nothing in this package
// reads the rows back.
func (i *Index) RecordRun(s RunSummary) error {
	var errText sql.NullString
	if s.Err != nil {
		errText = sql.NullString{String: s.Err.Error(), Valid: true}
	}
	_, err := i.SQL.Exec(
		`INSERT INTO runs (mode, storage_name, started_at, finished_at, done_count, done_size, skipped_count, error_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Mode, s.StorageName, s.StartedAt.Unix(), s.FinishedAt.Unix(),
		s.DoneCount, s.DoneSize, s.SkippedCount, s.ErrorCount, errText,
	)
	if err != nil {
		return fmt.Errorf("index: record run: %w", err)
	}
	return nil
}

// Package sqlite persists run and dataset metadata in a SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and creates the
// schema if missing.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dataset TEXT,
	status TEXT NOT NULL,
	imported INTEGER DEFAULT 0,
	survivors INTEGER DEFAULT 0,
	failed INTEGER DEFAULT 0,
	started_at TEXT,
	finished_at TEXT,
	error TEXT
);

CREATE TABLE IF NOT EXISTS datasets (
	name TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	format TEXT,
	documents INTEGER DEFAULT 0,
	chunks INTEGER DEFAULT 0,
	languages TEXT,
	output_dir TEXT,
	exported_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_datasets_hash ON datasets(hash);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts or updates a run row.
func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	const stmt = `
INSERT INTO runs (id, dataset, status, imported, survivors, failed, started_at, finished_at, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	dataset=excluded.dataset,
	status=excluded.status,
	imported=excluded.imported,
	survivors=excluded.survivors,
	failed=excluded.failed,
	started_at=excluded.started_at,
	finished_at=excluded.finished_at,
	error=excluded.error;
`
	_, err := s.db.ExecContext(
		ctx,
		stmt,
		r.ID,
		r.Dataset,
		r.Status,
		r.Imported,
		r.Survivors,
		r.Failed,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		r.Error,
	)
	return err
}

// GetRun returns a run by id.
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, dataset, status, imported, survivors, failed, started_at, finished_at, error
FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, dataset, status, imported, survivors, failed, started_at, finished_at, error
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.Run, error) {
	var (
		r                 store.Run
		started, finished string
	)
	err := row.Scan(&r.ID, &r.Dataset, &r.Status, &r.Imported, &r.Survivors, &r.Failed, &started, &finished, &r.Error)
	if err != nil {
		return store.Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// UpsertDataset inserts or updates a dataset row, keyed by name.
func (s *sqliteStore) UpsertDataset(ctx context.Context, d store.Dataset) error {
	langs, err := json.Marshal(d.Languages)
	if err != nil {
		return err
	}
	const stmt = `
INSERT INTO datasets (name, hash, format, documents, chunks, languages, output_dir, exported_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	hash=excluded.hash,
	format=excluded.format,
	documents=excluded.documents,
	chunks=excluded.chunks,
	languages=excluded.languages,
	output_dir=excluded.output_dir,
	exported_at=excluded.exported_at;
`
	_, err = s.db.ExecContext(
		ctx,
		stmt,
		d.Name,
		d.Hash,
		d.Format,
		d.Documents,
		d.Chunks,
		string(langs),
		d.OutputDir,
		formatTime(d.ExportedAt),
	)
	return err
}

// GetDataset returns a dataset by name.
func (s *sqliteStore) GetDataset(ctx context.Context, name string) (store.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, hash, format, documents, chunks, languages, output_dir, exported_at
FROM datasets WHERE name = ?`, name)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return store.Dataset{}, fmt.Errorf("dataset %s: %w", name, internalerr.ErrNotFound)
	}
	return d, err
}

// GetDatasetByHash looks a dataset up by content hash.
func (s *sqliteStore) GetDatasetByHash(ctx context.Context, hash string) (store.Dataset, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, hash, format, documents, chunks, languages, output_dir, exported_at
FROM datasets WHERE hash = ? LIMIT 1`, hash)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return store.Dataset{}, false, nil
	}
	if err != nil {
		return store.Dataset{}, false, err
	}
	return d, true, nil
}

// ListDatasets returns every dataset, newest first.
func (s *sqliteStore) ListDatasets(ctx context.Context) ([]store.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, hash, format, documents, chunks, languages, output_dir, exported_at
FROM datasets ORDER BY exported_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDataset(row scanner) (store.Dataset, error) {
	var (
		d        store.Dataset
		langs    string
		exported string
	)
	err := row.Scan(&d.Name, &d.Hash, &d.Format, &d.Documents, &d.Chunks, &langs, &d.OutputDir, &exported)
	if err != nil {
		return store.Dataset{}, err
	}
	if langs != "" && langs != "null" {
		if err := json.Unmarshal([]byte(langs), &d.Languages); err != nil {
			return store.Dataset{}, err
		}
	}
	d.ExportedAt = parseTime(exported)
	return d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package store

import (
	"context"
	"time"
)

// Store persists run and dataset metadata.
type Store interface {
	Close() error

	// Runs
	RecordRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Datasets
	UpsertDataset(ctx context.Context, d Dataset) error
	GetDataset(ctx context.Context, name string) (Dataset, error)
	GetDatasetByHash(ctx context.Context, hash string) (Dataset, bool, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
}

// Run records one pipeline execution.
type Run struct {
	ID         string
	Dataset    string
	Status     string
	Imported   int
	Survivors  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Dataset records an exported dataset.
type Dataset struct {
	Name       string
	Hash       string
	Format     string
	Documents  int
	Chunks     int
	Languages  map[string]int
	OutputDir  string
	ExportedAt time.Time
}

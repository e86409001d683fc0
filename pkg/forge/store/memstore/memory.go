// Package memstore provides an in-memory store implementation for
// tests and library embedding without a database file.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	runs     map[string]store.Run
	datasets map[string]store.Dataset
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs:     make(map[string]store.Run),
		datasets: make(map[string]store.Dataset),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// RecordRun inserts or updates a run, keyed by id.
func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		return fmt.Errorf("run id: %w", internalerr.ErrInvalidInput)
	}
	s.runs[r.ID] = r
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.runs[id]; ok {
		return r, nil
	}
	return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertDataset inserts or updates a dataset, keyed by name.
func (s *Store) UpsertDataset(ctx context.Context, d store.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Name == "" {
		return fmt.Errorf("dataset name: %w", internalerr.ErrInvalidInput)
	}
	s.datasets[d.Name] = copyDataset(d)
	return nil
}

// GetDataset returns a dataset by name.
func (s *Store) GetDataset(ctx context.Context, name string) (store.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.datasets[name]; ok {
		return copyDataset(d), nil
	}
	return store.Dataset{}, fmt.Errorf("dataset %s: %w", name, internalerr.ErrNotFound)
}

// GetDatasetByHash looks a dataset up by content hash.
func (s *Store) GetDatasetByHash(ctx context.Context, hash string) (store.Dataset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.datasets[name].Hash == hash {
			return copyDataset(s.datasets[name]), true, nil
		}
	}
	return store.Dataset{}, false, nil
}

// ListDatasets returns every dataset, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]store.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, copyDataset(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExportedAt.After(out[j].ExportedAt) })
	return out, nil
}

func copyDataset(d store.Dataset) store.Dataset {
	if d.Languages != nil {
		langs := make(map[string]int, len(d.Languages))
		for k, v := range d.Languages {
			langs[k] = v
		}
		d.Languages = langs
	}
	return d
}

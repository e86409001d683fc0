package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forge.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := store.Run{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Dataset:   "corpus",
		Status:    "running",
		Imported:  100,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	// Recording again updates in place.
	run.Status = "completed"
	run.Survivors = 80
	run.Failed = 1
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.Survivors != 80 || got.Failed != 1 {
		t.Fatalf("got %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("started at: got %v, want %v", got.StartedAt, run.StartedAt)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("missing run: got %v", err)
	}
}

func TestListRunsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		run := store.Run{ID: id, Status: "completed", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.RecordRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("got %+v", runs)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := store.Dataset{
		Name:       "corpus",
		Hash:       "abc123",
		Format:     "jsonl",
		Documents:  10,
		Chunks:     40,
		Languages:  map[string]int{"en": 8, "de": 2},
		OutputDir:  "/tmp/out",
		ExportedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.UpsertDataset(ctx, d); err != nil {
		t.Fatal(err)
	}

	// Upsert replaces the existing row.
	d.Documents = 12
	if err := s.UpsertDataset(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDataset(ctx, "corpus")
	if err != nil {
		t.Fatal(err)
	}
	if got.Documents != 12 || got.Languages["de"] != 2 {
		t.Fatalf("got %+v", got)
	}

	byHash, ok, err := s.GetDatasetByHash(ctx, "abc123")
	if err != nil || !ok || byHash.Name != "corpus" {
		t.Fatalf("by hash: %+v ok=%v err=%v", byHash, ok, err)
	}
	if _, ok, err := s.GetDatasetByHash(ctx, "nope"); ok || err != nil {
		t.Fatalf("unknown hash: ok=%v err=%v", ok, err)
	}

	all, err := s.ListDatasets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d datasets", len(all))
	}

	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("missing dataset: got %v", err)
	}
}

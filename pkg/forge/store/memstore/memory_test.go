package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/store"
)

func TestRunRoundTrip(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	run := store.Run{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Dataset:   "corpus",
		Status:    "completed",
		Imported:  100,
		Survivors: 80,
		Failed:    2,
		StartedAt: time.Now().Add(-time.Minute),
	}
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Survivors != 80 || got.Status != "completed" {
		t.Fatalf("got %+v", got)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("missing run: got %v", err)
	}
	if err := s.RecordRun(ctx, store.Run{}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("empty id: got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		run := store.Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}
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
	s := New()
	ctx := context.Background()

	d := store.Dataset{
		Name:       "corpus",
		Hash:       "abc123",
		Format:     "jsonl",
		Documents:  10,
		Chunks:     40,
		Languages:  map[string]int{"en": 8, "de": 2},
		OutputDir:  "/tmp/out",
		ExportedAt: time.Now(),
	}
	if err := s.UpsertDataset(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDataset(ctx, "corpus")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != "abc123" || got.Languages["en"] != 8 {
		t.Fatalf("got %+v", got)
	}

	// Mutating the returned copy must not affect the stored value.
	got.Languages["en"] = 0
	again, err := s.GetDataset(ctx, "corpus")
	if err != nil {
		t.Fatal(err)
	}
	if again.Languages["en"] != 8 {
		t.Fatal("stored dataset was mutated through a returned copy")
	}

	byHash, ok, err := s.GetDatasetByHash(ctx, "abc123")
	if err != nil || !ok {
		t.Fatalf("by hash: ok=%v err=%v", ok, err)
	}
	if byHash.Name != "corpus" {
		t.Fatalf("by hash: got %+v", byHash)
	}
	if _, ok, err := s.GetDatasetByHash(ctx, "nope"); ok || err != nil {
		t.Fatalf("unknown hash: ok=%v err=%v", ok, err)
	}

	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("missing dataset: got %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderBuildsPlan(t *testing.T) {
	dir := t.TempDir()
	profanity := filepath.Join(dir, "profanity.yaml")
	if err := os.WriteFile(profanity, []byte("terms:\n  - badword\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	synonyms := filepath.Join(dir, "synonyms.yaml")
	if err := os.WriteFile(synonyms, []byte("synonyms:\n  - canonical: big\n    variants: [large]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := Defaults()
	f.Filters.ProfanityList = profanity
	f.Filters.Languages = []string{"en"}
	f.Filters.MinTokens = 3
	f.Augment.Enabled = true
	f.Augment.LexiconPath = synonyms

	comp, err := (&Loader{File: f}).Load()
	if err != nil {
		t.Fatal(err)
	}

	names := []string{}
	for _, s := range comp.Plan.Before {
		names = append(names, s.Name())
	}
	want := []string{"normalize", "length", "profanity", "language"}
	if len(names) != len(want) {
		t.Fatalf("before stages: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("stage %d: got %q, want %q", i, names[i], want[i])
		}
	}
	if !comp.Plan.Dedup {
		t.Fatal("dedup not enabled")
	}
	if len(comp.Plan.After) != 1 || comp.Plan.After[0].Name() != "augment" {
		t.Fatalf("after stages: %v", comp.Plan.After)
	}
	if comp.Chunker != nil {
		t.Fatal("chunker built while disabled")
	}
	if comp.Gate != nil {
		t.Fatal("gate built without license config")
	}
}

func TestLoaderMissingFiles(t *testing.T) {
	f := Defaults()
	f.Filters.ProfanityList = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := (&Loader{File: f}).Load(); err == nil {
		t.Fatal("missing profanity list accepted")
	}

	f = Defaults()
	f.Augment.Enabled = true
	f.Augment.LexiconPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := (&Loader{File: f}).Load(); err == nil {
		t.Fatal("missing lexicon accepted")
	}
}

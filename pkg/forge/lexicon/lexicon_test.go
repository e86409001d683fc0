package lexicon

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestAddGroupAndLookup(t *testing.T) {
	lex := New()
	lex.AddGroup("Big", []string{"Large", "huge", "big"})

	if got := lex.Canonical("HUGE"); got != "big" {
		t.Fatalf("Canonical: got %q", got)
	}
	if got := lex.Canonical("unknown"); got != "unknown" {
		t.Fatalf("Canonical passthrough: got %q", got)
	}
	if got := lex.Synonyms("large"); !reflect.DeepEqual(got, []string{"big", "huge"}) {
		t.Fatalf("Synonyms: got %v", got)
	}
	if lex.Synonyms("unknown") != nil {
		t.Fatal("Synonyms of unknown token should be nil")
	}
	if !lex.Has("huge") || lex.Has("tiny") {
		t.Fatal("Has membership wrong")
	}
}

func TestAddGroupReplacesExisting(t *testing.T) {
	lex := New()
	lex.AddGroup("fast", []string{"quick", "rapid"})
	lex.AddGroup("fast", []string{"speedy"})

	if lex.Has("quick") {
		t.Fatal("old variant survived group replacement")
	}
	if got := lex.Canonical("speedy"); got != "fast" {
		t.Fatalf("new variant: got %q", got)
	}
	stats := lex.Stats()
	if stats.Groups != 1 || stats.TotalMembers != 2 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	data := `synonyms:
  - canonical: big
    variants: [large, huge]
  - canonical: fast
    variants: [quick]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	lex, err := LoadFromYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := lex.Canonical("huge"); got != "big" {
		t.Fatalf("got %q", got)
	}
	if got := lex.Synonyms("fast"); !reflect.DeepEqual(got, []string{"quick"}) {
		t.Fatalf("got %v", got)
	}

	if _, err := LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file: want error")
	}
}

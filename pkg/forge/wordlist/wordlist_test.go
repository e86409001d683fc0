package wordlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerMembership(t *testing.T) {
	m := NewManager([]string{"Alpha", "beta", "  gamma  "})
	if m.Len() != 3 {
		t.Fatalf("len: got %d", m.Len())
	}
	for _, w := range []string{"alpha", "ALPHA", "beta", "gamma"} {
		if !m.Contains(w) {
			t.Errorf("Contains(%q) = false", w)
		}
	}
	if m.Contains("delta") {
		t.Error("Contains(delta) = true")
	}

	m.Remove("BETA")
	if m.Contains("beta") {
		t.Error("beta survived Remove")
	}

	m.Add("")
	if m.Len() != 2 {
		t.Fatalf("empty word added: len %d", m.Len())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.yaml")
	data := "terms:\n  - first\n  - Second\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Contains("first") || !m.Contains("second") {
		t.Fatalf("missing terms: %v", m.All())
	}
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file: want error")
	}
}

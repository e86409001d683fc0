package dedup

import (
	"testing"
)

func TestSignatureDeterministic(t *testing.T) {
	e1, err := NewEngine(SignatureConfig{ShingleSize: 3, NumHashes: 64})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e2, err := NewEngine(SignatureConfig{ShingleSize: 3, NumHashes: 64})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	text := "the quick brown fox jumps over the lazy dog again and again"
	a := e1.Signature(text)
	b := e1.Signature(text)
	c := e2.Signature(text)

	if len(a) != 64 {
		t.Fatalf("expected 64 hashes, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] || a[i] != c[i] {
			t.Fatalf("signature not deterministic at position %d", i)
		}
	}
}

func TestSignatureShortText(t *testing.T) {
	e, err := NewEngine(SignatureConfig{ShingleSize: 5, NumHashes: 16})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	// Two tokens, shingle size five: whole text becomes one shingle.
	sig := e.Signature("hello world")
	if len(sig) != 16 {
		t.Fatalf("expected 16 hashes, got %d", len(sig))
	}
	for i, v := range sig {
		if v == 0 {
			t.Errorf("position %d unset", i)
		}
	}

	set := ShingleSet("hello world", 5)
	if len(set) != 1 {
		t.Errorf("expected single shingle, got %d", len(set))
	}
}

func TestSignatureSimilarityTracksJaccard(t *testing.T) {
	e, err := NewEngine(SignatureConfig{ShingleSize: 2, NumHashes: 256})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	near1 := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	near2 := "alpha beta gamma delta epsilon zeta eta theta iota lambda"
	far := "one two three four five six seven eight nine ten"

	simNear := EstimateSimilarity(e.Signature(near1), e.Signature(near2))
	simFar := EstimateSimilarity(e.Signature(near1), e.Signature(far))

	if simNear < 0.5 {
		t.Errorf("near-identical texts estimated too dissimilar: %f", simNear)
	}
	if simFar > 0.2 {
		t.Errorf("unrelated texts estimated too similar: %f", simFar)
	}

	exact := Jaccard(ShingleSet(near1, 2), ShingleSet(near2, 2))
	if exact < 0.7 {
		t.Errorf("exact jaccard unexpectedly low: %f", exact)
	}
}

func TestSignatureCache(t *testing.T) {
	e, err := NewEngine(SignatureConfig{ShingleSize: 2, NumHashes: 32, CacheSize: 8})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	a := e.SignatureFor("key1", "some document text for caching")
	b := e.SignatureFor("key1", "completely different text")

	// Same key returns the cached signature regardless of text.
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("cache miss for identical key")
		}
	}
}

func TestSignatureConfigValidation(t *testing.T) {
	if _, err := NewEngine(SignatureConfig{ShingleSize: 0, NumHashes: 8}); err == nil {
		t.Error("expected error for shingle size 0")
	}
	if _, err := NewEngine(SignatureConfig{ShingleSize: 2, NumHashes: 0}); err == nil {
		t.Error("expected error for zero hashes")
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Hello, World! machine-learning 42")
	want := []string{"hello", "world", "machine-learning", "42"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: want %q got %q", i, want[i], tokens[i])
		}
	}
}

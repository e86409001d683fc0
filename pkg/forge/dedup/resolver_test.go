package dedup

import (
	"testing"

	"github.com/corpusforge/forge/pkg/forge/document"
)

func buildDocs(t *testing.T, engine *Engine, texts ...string) []*document.Document {
	t.Helper()
	docs := make([]*document.Document, len(texts))
	for i, text := range texts {
		d := document.New(int64(i+1), text, "test")
		d.Signature = engine.SignatureFor(d.ContentHash, d.Text)
		docs[i] = d
	}
	return docs
}

func indexAll(t *testing.T, idx *Index, docs []*document.Document) {
	t.Helper()
	for _, d := range docs {
		if err := idx.Insert(d.Ordinal, d.Signature); err != nil {
			t.Fatalf("Insert %d: %v", d.Ordinal, err)
		}
	}
}

func TestResolveNearIdenticalPair(t *testing.T) {
	engine, err := NewEngine(SignatureConfig{ShingleSize: 2, NumHashes: 128})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	idx := newTestIndex(t, LSHConfig{Bands: 32, Rows: 4}, 128)

	near := "senate passes landmark infrastructure bill after months of negotiation between both parties clearing the way for new spending on roads bridges and rural broadband next year"
	nearVariant := "senate passes landmark infrastructure bill after months of negotiation between both parties clearing the way for new spending on roads bridges and rural broadband this year"
	unrelated := "local bakery wins regional prize for sourdough loaves baked overnight inside an old wood oven"

	docs := buildDocs(t, engine, near, nearVariant, unrelated)
	indexAll(t, idx, docs)

	resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Verification: VerifyExact}, engine)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	decisions := resolver.Resolve(docs, idx.CandidatePairs())

	if len(decisions) != 3 {
		t.Fatalf("expected a decision for every document, got %d", len(decisions))
	}

	kept := 0
	for _, dec := range decisions {
		if dec.Kept {
			kept++
		}
	}
	if kept != 2 {
		t.Errorf("expected 2 kept documents, got %d", kept)
	}

	// Lowest ordinal of the near pair wins; the variant points back at it.
	if !decisions[1].Kept {
		t.Error("lowest-ordinal duplicate should be kept")
	}
	if decisions[2].Kept {
		t.Error("higher-ordinal duplicate should be dropped")
	}
	if decisions[2].DuplicateOf != 1 {
		t.Errorf("drop reason should reference ordinal 1, got %d", decisions[2].DuplicateOf)
	}
	if !decisions[3].Kept {
		t.Error("unrelated document should be kept")
	}
}

func TestResolveIdempotent(t *testing.T) {
	engine, err := NewEngine(SignatureConfig{ShingleSize: 2, NumHashes: 128})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Verification: VerifyExact}, engine)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	texts := []string{
		"the quick brown fox jumps over the lazy dog then circles back across the wide field before resting under the old oak tree at morning",
		"the quick brown fox jumps over the lazy dog then circles back across the wide field before resting under the old oak tree at night",
		"completely different content about orbital mechanics and the fuel budget needed for station keeping",
	}

	run := func(docs []*document.Document) map[int64]Decision {
		idx := newTestIndex(t, LSHConfig{Bands: 32, Rows: 4}, 128)
		indexAll(t, idx, docs)
		return resolver.Resolve(docs, idx.CandidatePairs())
	}

	docs := buildDocs(t, engine, texts...)
	first := run(docs)

	// Keep only survivors and resolve again: nothing further drops.
	var survivors []*document.Document
	for _, d := range docs {
		if first[d.Ordinal].Kept {
			survivors = append(survivors, d)
		}
	}
	second := run(survivors)
	for ord, dec := range second {
		if !dec.Kept {
			t.Errorf("document %d dropped on rerun of deduped output", ord)
		}
	}
}

func TestResolveTotalMapping(t *testing.T) {
	engine, err := NewEngine(DefaultSignatureConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	resolver, err := NewResolver(DefaultResolverConfig(), engine)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	docs := buildDocs(t, engine,
		"first text with nothing in common",
		"second text likewise entirely distinct",
	)

	// No candidate pairs at all: everything kept by default.
	decisions := resolver.Resolve(docs, nil)
	for _, d := range docs {
		dec, ok := decisions[d.Ordinal]
		if !ok {
			t.Fatalf("no decision for document %d", d.Ordinal)
		}
		if !dec.Kept {
			t.Errorf("document %d should be kept without candidates", d.Ordinal)
		}
	}
}

func TestResolverConfigValidation(t *testing.T) {
	engine, _ := NewEngine(DefaultSignatureConfig())
	if _, err := NewResolver(ResolverConfig{Threshold: 0, Verification: VerifyExact}, engine); err == nil {
		t.Error("zero threshold accepted")
	}
	if _, err := NewResolver(ResolverConfig{Threshold: 1.5, Verification: VerifyExact}, engine); err == nil {
		t.Error("threshold above 1 accepted")
	}
	if _, err := NewResolver(ResolverConfig{Threshold: 0.8, Verification: "fuzzy"}, engine); err == nil {
		t.Error("unknown verification mode accepted")
	}
}

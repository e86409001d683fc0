package dedup

import (
	"sort"

	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// Verification selects how candidate pairs are checked before clustering.
type Verification string

const (
	// VerifyExact compares the documents' shingle sets with exact Jaccard
	// similarity. This is the correct default.
	VerifyExact Verification = "exact"

	// VerifyEstimate compares signatures position-wise. Faster, but it is
	// an approximation of an approximation; use only when shingle sets
	// are too large to hold.
	VerifyEstimate Verification = "estimate"
)

// ResolverConfig controls duplicate resolution.
type ResolverConfig struct {
	// Threshold is the minimum similarity for two candidates to be
	// considered duplicates. Range (0, 1].
	Threshold float64

	// Verification picks the similarity measure for candidate pairs.
	Verification Verification
}

// DefaultResolverConfig verifies exactly at 0.9, matching the signature
// defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{Threshold: 0.9, Verification: VerifyExact}
}

// Validate checks the configuration.
func (c ResolverConfig) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return internalerr.NewConfigError("dedup_threshold", "must be in (0, 1]")
	}
	switch c.Verification {
	case VerifyExact, VerifyEstimate:
		return nil
	default:
		return internalerr.NewConfigError("dedup_verification", "must be exact or estimate")
	}
}

// Decision is the final dedup outcome for one document.
type Decision struct {
	Kept bool
	// DuplicateOf is the ordinal of the kept representative when Kept is
	// false.
	DuplicateOf int64
}

// Resolver verifies candidate pairs and assigns every document exactly
// one Decision.
type Resolver struct {
	cfg    ResolverConfig
	engine *Engine
}

// NewResolver validates the config and builds a resolver sharing the
// signature engine's shingle configuration.
func NewResolver(cfg ResolverConfig, engine *Engine) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, engine: engine}, nil
}

// Resolve clusters verified duplicate pairs with union-find and keeps one
// representative per cluster: the lowest ingestion ordinal, ties broken
// by content hash. Documents in no cluster are kept. The result is a
// total mapping: every input document has exactly one Decision,
// independent of pair or worker ordering.
func (r *Resolver) Resolve(docs []*document.Document, pairs []Pair) map[int64]Decision {
	byOrdinal := make(map[int64]*document.Document, len(docs))
	for _, d := range docs {
		byOrdinal[d.Ordinal] = d
	}

	uf := newUnionFind()
	for _, d := range docs {
		uf.add(d.Ordinal)
	}

	shingles := make(map[int64]map[string]struct{})
	shingleSet := func(d *document.Document) map[string]struct{} {
		if s, ok := shingles[d.Ordinal]; ok {
			return s
		}
		s := ShingleSet(d.Text, r.engine.Config().ShingleSize)
		shingles[d.Ordinal] = s
		return s
	}

	for _, p := range pairs {
		a, okA := byOrdinal[p.Lo]
		b, okB := byOrdinal[p.Hi]
		if !okA || !okB {
			continue
		}

		var sim float64
		switch r.cfg.Verification {
		case VerifyEstimate:
			sim = EstimateSimilarity(a.Signature, b.Signature)
		default:
			sim = Jaccard(shingleSet(a), shingleSet(b))
		}
		if sim >= r.cfg.Threshold {
			uf.union(p.Lo, p.Hi)
		}
	}

	// Pick each cluster's representative deterministically.
	clusters := make(map[int64][]int64)
	for _, d := range docs {
		root := uf.find(d.Ordinal)
		clusters[root] = append(clusters[root], d.Ordinal)
	}

	out := make(map[int64]Decision, len(docs))
	for _, members := range clusters {
		sort.Slice(members, func(i, j int) bool {
			a, b := byOrdinal[members[i]], byOrdinal[members[j]]
			if a.Ordinal != b.Ordinal {
				return a.Ordinal < b.Ordinal
			}
			return a.ContentHash < b.ContentHash
		})
		rep := members[0]
		out[rep] = Decision{Kept: true}
		for _, m := range members[1:] {
			out[m] = Decision{Kept: false, DuplicateOf: rep}
		}
	}
	return out
}

// unionFind over document ordinals with path compression and union by
// size.
type unionFind struct {
	parent map[int64]int64
	size   map[int64]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64), size: make(map[int64]int)}
}

func (u *unionFind) add(x int64) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
	}
}

func (u *unionFind) find(x int64) int64 {
	u.add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

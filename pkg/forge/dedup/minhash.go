package dedup

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// SignatureConfig controls MinHash signature computation.
type SignatureConfig struct {
	// ShingleSize is the token-window length. Minimum 1.
	ShingleSize int

	// NumHashes is the signature length: one independent hash function
	// per position. Minimum 1.
	NumHashes int

	// CacheSize bounds the signature cache (entries, keyed by content
	// hash). Zero disables caching.
	CacheSize int
}

// DefaultSignatureConfig mirrors the common MinHash setup: 128
// permutations over 3-token shingles.
func DefaultSignatureConfig() SignatureConfig {
	return SignatureConfig{ShingleSize: 3, NumHashes: 128, CacheSize: 4096}
}

// Validate checks the configuration before any processing starts.
func (c SignatureConfig) Validate() error {
	if c.ShingleSize < 1 {
		return internalerr.NewConfigError("shingle_size", "must be >= 1")
	}
	if c.NumHashes < 1 {
		return internalerr.NewConfigError("num_hashes", "must be >= 1")
	}
	return nil
}

// Engine computes MinHash signatures. Hash functions are seeded from
// their position index, so identical text and config produce an
// identical signature across calls and across processes.
type Engine struct {
	cfg   SignatureConfig
	cache *lru.Cache[string, []uint64]
}

// NewEngine validates the config and builds an engine.
func NewEngine(cfg SignatureConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []uint64](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() SignatureConfig { return e.cfg }

// Signature computes the MinHash signature of text: for each seeded hash
// function, the minimum hash value over all shingles.
func (e *Engine) Signature(text string) []uint64 {
	return e.SignatureFor("", text)
}

// SignatureFor is Signature with a cache key (typically the document's
// content hash). An empty key bypasses the cache.
func (e *Engine) SignatureFor(key, text string) []uint64 {
	if key != "" && e.cache != nil {
		if sig, ok := e.cache.Get(key); ok {
			return sig
		}
	}

	shingles := ShingleSet(text, e.cfg.ShingleSize)
	sig := make([]uint64, e.cfg.NumHashes)
	for i := range sig {
		sig[i] = math.MaxUint64
	}

	for s := range shingles {
		for i := range sig {
			if h := seededHash(uint64(i), s); h < sig[i] {
				sig[i] = h
			}
		}
	}

	if key != "" && e.cache != nil {
		e.cache.Add(key, sig)
	}
	return sig
}

// EstimateSimilarity approximates Jaccard similarity from two signatures
// as the fraction of matching positions. Signatures must come from the
// same configuration.
func EstimateSimilarity(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(len(a))
}

// seededHash hashes a shingle under the hash function identified by seed.
func seededHash(seed uint64, s string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	h.Write(buf[:])
	h.Write([]byte(s))
	return h.Sum64()
}

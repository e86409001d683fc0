package dedup

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

const indexShards = 32

// degenerateBucketMin is the corpus size above which an index where every
// band maps all documents into a single bucket is treated as a banding
// misconfiguration instead of a legitimately uniform corpus.
const degenerateBucketMin = 8

// LSHConfig controls the banding of signatures into bucket keys.
type LSHConfig struct {
	// Bands is the number of row groups each signature is split into.
	Bands int
	// Rows is the group size. Bands*Rows must equal the signature length.
	Rows int
}

// DefaultLSHConfig pairs with DefaultSignatureConfig (32*4 = 128).
func DefaultLSHConfig() LSHConfig {
	return LSHConfig{Bands: 32, Rows: 4}
}

// Validate checks the banding against the signature length.
func (c LSHConfig) Validate(numHashes int) error {
	if c.Bands < 1 {
		return internalerr.NewConfigError("lsh_bands", "must be >= 1")
	}
	if c.Rows < 1 {
		return internalerr.NewConfigError("lsh_rows", "must be >= 1")
	}
	if c.Bands*c.Rows != numHashes {
		return internalerr.NewConfigError("lsh_bands", "bands*rows must equal num_hashes")
	}
	return nil
}

// bucketKey identifies one LSH bucket: a band index plus the hash of that
// band's signature segment.
type bucketKey struct {
	band int
	hash uint64
}

type indexShard struct {
	mu      sync.Mutex
	buckets map[bucketKey][]int64
}

// Index buckets documents by banded signature segments. Inserts and
// lookups are safe for concurrent use; the bucket space is sharded by
// key hash so parallel workers do not contend on a single lock.
type Index struct {
	cfg    LSHConfig
	shards [indexShards]*indexShard

	mu   sync.Mutex
	keys map[int64][]bucketKey // ordinal -> its bucket keys
}

// NewIndex builds an empty index for signatures of length numHashes.
func NewIndex(cfg LSHConfig, numHashes int) (*Index, error) {
	if err := cfg.Validate(numHashes); err != nil {
		return nil, err
	}
	idx := &Index{cfg: cfg, keys: make(map[int64][]bucketKey)}
	for i := range idx.shards {
		idx.shards[i] = &indexShard{buckets: make(map[bucketKey][]int64)}
	}
	return idx, nil
}

// Insert adds a document's signature to every band bucket it belongs to.
// A document appears in exactly one bucket per band.
func (x *Index) Insert(ordinal int64, sig []uint64) error {
	if len(sig) != x.cfg.Bands*x.cfg.Rows {
		return internalerr.NewConfigError("signature", "length does not match banding")
	}

	keys := make([]bucketKey, x.cfg.Bands)
	for b := 0; b < x.cfg.Bands; b++ {
		seg := sig[b*x.cfg.Rows : (b+1)*x.cfg.Rows]
		keys[b] = bucketKey{band: b, hash: hashSegment(b, seg)}
	}

	for _, k := range keys {
		shard := x.shards[k.hash%indexShards]
		shard.mu.Lock()
		shard.buckets[k] = append(shard.buckets[k], ordinal)
		shard.mu.Unlock()
	}

	x.mu.Lock()
	x.keys[ordinal] = keys
	x.mu.Unlock()
	return nil
}

// Candidates returns the ordinals sharing at least one bucket with the
// given document, excluding the document itself, in ascending order.
func (x *Index) Candidates(ordinal int64) []int64 {
	x.mu.Lock()
	keys := x.keys[ordinal]
	x.mu.Unlock()

	seen := make(map[int64]struct{})
	for _, k := range keys {
		shard := x.shards[k.hash%indexShards]
		shard.mu.Lock()
		for _, other := range shard.buckets[k] {
			if other != ordinal {
				seen[other] = struct{}{}
			}
		}
		shard.mu.Unlock()
	}

	out := make([]int64, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pair is an unordered candidate pair, stored with Lo < Hi.
type Pair struct {
	Lo, Hi int64
}

// CandidatePairs enumerates every distinct pair of documents that share
// at least one bucket, sorted for deterministic downstream processing.
func (x *Index) CandidatePairs() []Pair {
	seen := make(map[Pair]struct{})
	for _, shard := range x.shards {
		shard.mu.Lock()
		for _, members := range shard.buckets {
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					p := Pair{Lo: members[i], Hi: members[j]}
					if p.Lo > p.Hi {
						p.Lo, p.Hi = p.Hi, p.Lo
					}
					if p.Lo != p.Hi {
						seen[p] = struct{}{}
					}
				}
			}
		}
		shard.mu.Unlock()
	}

	out := make([]Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lo != out[j].Lo {
			return out[i].Lo < out[j].Lo
		}
		return out[i].Hi < out[j].Hi
	})
	return out
}

// CheckDegenerate reports a configuration error when the banding has
// collapsed: every band holds a single bucket containing the whole
// corpus, so every document is a candidate of every other. Small corpora
// are exempt since full collision there can be legitimate duplication.
func (x *Index) CheckDegenerate(total int) error {
	if total < degenerateBucketMin {
		return nil
	}

	perBand := make(map[int]int)
	for _, shard := range x.shards {
		shard.mu.Lock()
		for k := range shard.buckets {
			perBand[k.band]++
		}
		shard.mu.Unlock()
	}

	for b := 0; b < x.cfg.Bands; b++ {
		if perBand[b] > 1 {
			return nil
		}
	}
	return internalerr.NewConfigError("lsh_bands", "banding is degenerate: all documents collide in every band")
}

func hashSegment(band int, seg []uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(band))
	h.Write(buf[:])
	for _, v := range seg {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Package augment produces transformed variants of documents: synonym
// replacement and sentence reordering. All randomness is seeded from
// the document's content hash so output does not depend on worker count
// or scheduling.
package augment

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/lexicon"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
)

// Config controls augmentation behavior.
type Config struct {
	// SynonymRate is the per-token probability of replacement.
	SynonymRate float64

	// ReorderSentences emits an additional variant with shuffled
	// sentence order when the document has at least two sentences.
	ReorderSentences bool

	// Seed perturbs the per-document seed so distinct runs can
	// request distinct augmentations. Zero is a valid seed.
	Seed uint64
}

// DefaultConfig mirrors the tuning used for corpus enrichment.
func DefaultConfig() Config {
	return Config{SynonymRate: 0.05, ReorderSentences: true}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SynonymRate < 0 || c.SynonymRate > 1 {
		return &internalerr.ConfigError{
			Field:  "augment.synonym_rate",
			Reason: fmt.Sprintf("must be in [0,1], got %g", c.SynonymRate),
		}
	}
	return nil
}

// Augmenter derives variants of a text using a synonym lexicon.
type Augmenter struct {
	cfg Config
	lex *lexicon.Lexicon
}

// New creates an augmenter. A nil lexicon disables synonym replacement.
func New(cfg Config, lex *lexicon.Lexicon) (*Augmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lex == nil {
		lex = lexicon.New()
	}
	return &Augmenter{cfg: cfg, lex: lex}, nil
}

// seedFor derives a stable seed from a content hash.
func (a *Augmenter) seedFor(contentHash string) int64 {
	raw, err := hex.DecodeString(contentHash)
	if err != nil || len(raw) < 8 {
		raw = []byte(contentHash + "00000000")
	}
	return int64(binary.LittleEndian.Uint64(raw[:8]) ^ a.cfg.Seed)
}

// ReplaceSynonyms rewrites tokens with synonyms at the configured rate.
// Punctuation and casing of untouched tokens are preserved, and a
// replacement keeps the original token's leading-capital shape.
func (a *Augmenter) ReplaceSynonyms(text string, seed int64) string {
	if a.cfg.SynonymRate == 0 {
		return text
	}
	rng := rand.New(rand.NewSource(seed))
	fields := strings.Fields(text)
	changed := false
	for i, field := range fields {
		core, prefix, suffix := splitPunct(field)
		if core == "" || !a.lex.Has(core) {
			continue
		}
		if rng.Float64() >= a.cfg.SynonymRate {
			continue
		}
		options := a.lex.Synonyms(core)
		if len(options) == 0 {
			continue
		}
		repl := options[rng.Intn(len(options))]
		if isCapitalized(core) {
			repl = capitalize(repl)
		}
		fields[i] = prefix + repl + suffix
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// ReorderSentences returns the text with sentences shuffled. Texts with
// fewer than two sentences are returned unchanged.
func (a *Augmenter) ReorderSentences(text string, seed int64) string {
	sentences := SplitSentences(text)
	if len(sentences) < 2 {
		return text
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(sentences), func(i, j int) {
		sentences[i], sentences[j] = sentences[j], sentences[i]
	})
	return strings.Join(sentences, " ")
}

var sentenceEnd = regexp.MustCompile(`([.!?]+)\s+`)

// SplitSentences breaks text at sentence-final punctuation followed by
// whitespace. The punctuation stays attached to its sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitPunct(field string) (core, prefix, suffix string) {
	start := 0
	for start < len(field) && !isWordByte(field[start]) {
		start++
	}
	end := len(field)
	for end > start && !isWordByte(field[end-1]) {
		end--
	}
	return field[start:end], field[:start], field[end:]
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Stage emits augmented variants of each passing document as derived
// documents. The original text always survives as the first output.
type Stage struct {
	aug *Augmenter
}

// NewStage wraps an augmenter as a pipeline stage.
func NewStage(aug *Augmenter) *Stage {
	return &Stage{aug: aug}
}

func (s *Stage) Name() string { return "augment" }

func (s *Stage) Process(_ context.Context, doc *document.Document) (pipeline.Outcome, error) {
	seed := s.aug.seedFor(doc.ContentHash)
	variants := []string{doc.Text}

	if replaced := s.aug.ReplaceSynonyms(doc.Text, seed); replaced != doc.Text {
		variants = append(variants, replaced)
	}
	if s.aug.cfg.ReorderSentences {
		if reordered := s.aug.ReorderSentences(doc.Text, seed+1); reordered != doc.Text {
			variants = append(variants, reordered)
		}
	}
	if len(variants) == 1 {
		return pipeline.PassOutcome(), nil
	}
	return pipeline.TransformOutcome(variants...), nil
}

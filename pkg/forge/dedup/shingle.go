// Package dedup implements near-duplicate detection: MinHash signatures
// over token shingles, a banded LSH index for sub-quadratic candidate
// generation, and a resolver that verifies candidates and picks one
// deterministic representative per duplicate cluster.
package dedup

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase word tokens. Letters, digits and
// inner hyphens are kept; everything else separates tokens.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := strings.Trim(current.String(), "-")
		if word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// ShingleSet returns the set of overlapping token windows of length size.
// Text with fewer than size tokens yields a single shingle covering the
// whole text, so short documents still sign and participate in dedup.
func ShingleSet(text string, size int) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{})

	if len(tokens) < size {
		set[strings.Join(tokens, " ")] = struct{}{}
		return set
	}

	for i := 0; i+size <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+size], " ")] = struct{}{}
	}
	return set
}

// Jaccard computes |a ∩ b| / |a ∪ b| over two shingle sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for s := range a {
		if _, ok := b[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

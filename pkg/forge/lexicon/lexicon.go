// Package lexicon stores synonym groups used by text augmentation.
package lexicon

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon maps tokens to synonym groups. Each group has a canonical
// form plus variants, and lookups work in both directions: a variant
// resolves to its canonical, and any member yields the whole group.
type Lexicon struct {
	// canonical -> all members (canonical first)
	groups map[string][]string

	// member -> canonical
	reverseIndex map[string]string
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		groups:       make(map[string][]string),
		reverseIndex: make(map[string]string),
	}
}

// LoadFromYAML loads synonym groups from a YAML file.
//
// Expected format:
//
//	synonyms:
//	  - canonical: big
//	    variants: [large, huge, enormous]
//	  - canonical: fast
//	    variants: [quick, rapid, speedy]
//
// All tokens are normalized to lowercase.
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config struct {
		Synonyms []struct {
			Canonical string   `yaml:"canonical"`
			Variants  []string `yaml:"variants"`
		} `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	lex := New()
	for _, entry := range config.Synonyms {
		lex.AddGroup(entry.Canonical, entry.Variants)
	}
	return lex, nil
}

// AddGroup adds a synonym group. The canonical form is always the first
// member. If the canonical already has a group, its old reverse index
// entries are removed first.
func (l *Lexicon) AddGroup(canonical string, variants []string) {
	canonical = strings.ToLower(canonical)

	if old, exists := l.groups[canonical]; exists {
		for _, v := range old {
			delete(l.reverseIndex, v)
		}
	}

	members := make([]string, 0, len(variants)+1)
	seen := map[string]bool{canonical: true}
	members = append(members, canonical)
	for _, v := range variants {
		v = strings.ToLower(v)
		if !seen[v] {
			members = append(members, v)
			seen[v] = true
		}
	}

	l.groups[canonical] = members
	for _, v := range members {
		l.reverseIndex[v] = canonical
	}
}

// Canonical returns the canonical form of a token, or the token itself
// when it belongs to no group.
func (l *Lexicon) Canonical(token string) string {
	token = strings.ToLower(token)
	if canonical, ok := l.reverseIndex[token]; ok {
		return canonical
	}
	return token
}

// Synonyms returns the other members of a token's group, excluding the
// token itself. The result is sorted so callers can pick from it
// deterministically. A token with no group yields nil.
func (l *Lexicon) Synonyms(token string) []string {
	token = strings.ToLower(token)
	canonical, ok := l.reverseIndex[token]
	if !ok {
		return nil
	}
	members := l.groups[canonical]
	out := make([]string, 0, len(members)-1)
	for _, m := range members {
		if m != token {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether the token belongs to any synonym group.
func (l *Lexicon) Has(token string) bool {
	_, ok := l.reverseIndex[strings.ToLower(token)]
	return ok
}

// Stats summarizes the lexicon contents.
type Stats struct {
	Groups       int
	TotalMembers int
}

func (l *Lexicon) Stats() Stats {
	total := 0
	for _, members := range l.groups {
		total += len(members)
	}
	return Stats{Groups: len(l.groups), TotalMembers: total}
}

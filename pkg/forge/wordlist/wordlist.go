// Package wordlist manages flat word lists used by drop filters, such as
// the profanity list.
package wordlist

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manager holds a case-insensitive word set.
type Manager struct {
	words map[string]struct{}
}

// NewManager creates a manager seeded with the given words.
func NewManager(words []string) *Manager {
	m := &Manager{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		m.Add(w)
	}
	return m
}

// LoadYAML reads a word list from a YAML file of the form:
//
//	terms:
//	  - first
//	  - second
func LoadYAML(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Terms []string `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return NewManager(cfg.Terms), nil
}

// Contains checks membership, case-insensitively.
func (m *Manager) Contains(word string) bool {
	_, ok := m.words[strings.ToLower(word)]
	return ok
}

// Add inserts a word.
func (m *Manager) Add(word string) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word != "" {
		m.words[word] = struct{}{}
	}
}

// Remove deletes a word.
func (m *Manager) Remove(word string) {
	delete(m.words, strings.ToLower(word))
}

// Len returns the number of words held.
func (m *Manager) Len() int { return len(m.words) }

// All returns every word in the list.
func (m *Manager) All() []string {
	out := make([]string, 0, len(m.words))
	for w := range m.words {
		out = append(out, w)
	}
	return out
}

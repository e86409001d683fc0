package clean

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpusforge/forge/pkg/forge/dedup"
	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
	"github.com/corpusforge/forge/pkg/forge/wordlist"
)

// ProfanityStage drops documents containing any term from a word list.
type ProfanityStage struct {
	list *wordlist.Manager
}

// NewProfanityStage creates a drop filter over the given list.
func NewProfanityStage(list *wordlist.Manager) *ProfanityStage {
	return &ProfanityStage{list: list}
}

func (s *ProfanityStage) Name() string { return "profanity" }

func (s *ProfanityStage) Process(_ context.Context, doc *document.Document) (pipeline.Outcome, error) {
	for _, tok := range dedup.Tokenize(doc.Text) {
		if s.list.Contains(tok) {
			return pipeline.DropOutcome("profanity: " + tok), nil
		}
	}
	return pipeline.PassOutcome(), nil
}

// Detector identifies the language of a text sample, returning an ISO
// 639-1 code such as "en".
type Detector interface {
	Detect(text string) (string, error)
	Available() bool
}

// LanguageStage keeps documents whose detected language appears in an
// accept list. It satisfies pipeline.ReadyChecker so it can be wrapped
// with pipeline.Optional when the detector is a remote collaborator.
type LanguageStage struct {
	detector Detector
	accept   map[string]struct{}
}

// NewLanguageStage creates a language filter. An empty accept list
// keeps every document but still annotates the detected language.
func NewLanguageStage(det Detector, accept []string) *LanguageStage {
	s := &LanguageStage{detector: det, accept: make(map[string]struct{}, len(accept))}
	for _, code := range accept {
		s.accept[strings.ToLower(code)] = struct{}{}
	}
	return s
}

func (s *LanguageStage) Name() string { return "language" }

func (s *LanguageStage) Ready() error {
	if !s.detector.Available() {
		return fmt.Errorf("language detector unavailable")
	}
	return nil
}

func (s *LanguageStage) Process(_ context.Context, doc *document.Document) (pipeline.Outcome, error) {
	lang, err := s.detector.Detect(doc.Text)
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("language detection: %w", err)
	}
	doc.Language = lang
	if len(s.accept) == 0 {
		return pipeline.PassOutcome(), nil
	}
	if _, ok := s.accept[lang]; !ok {
		return pipeline.DropOutcome("language not accepted: " + lang), nil
	}
	return pipeline.PassOutcome(), nil
}

// LengthStage drops documents outside a token count range. MaxTokens
// of zero means unbounded.
type LengthStage struct {
	MinTokens int
	MaxTokens int
}

func (s *LengthStage) Name() string { return "length" }

func (s *LengthStage) Process(_ context.Context, doc *document.Document) (pipeline.Outcome, error) {
	n := len(dedup.Tokenize(doc.Text))
	if n < s.MinTokens {
		return pipeline.DropOutcome(fmt.Sprintf("too short: %d tokens", n)), nil
	}
	if s.MaxTokens > 0 && n > s.MaxTokens {
		return pipeline.DropOutcome(fmt.Sprintf("too long: %d tokens", n)), nil
	}
	return pipeline.PassOutcome(), nil
}

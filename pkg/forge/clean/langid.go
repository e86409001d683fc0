package clean

import (
	"strings"
	"unicode"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// HeuristicDetector is a dependency-free language detector used when no
// external detector is configured. It distinguishes a handful of major
// languages by script and stopword frequency, defaulting to English for
// Latin text it cannot classify.
type HeuristicDetector struct{}

func NewHeuristicDetector() *HeuristicDetector { return &HeuristicDetector{} }

func (d *HeuristicDetector) Available() bool { return true }

var stopwordHints = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "that", "with", "for"},
	"de": {"der", "die", "und", "das", "ist", "nicht", "ein", "mit"},
	"fr": {"le", "la", "les", "et", "est", "une", "dans", "pour"},
	"es": {"el", "la", "los", "que", "es", "una", "con", "para"},
}

func (d *HeuristicDetector) Detect(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", internalerr.ErrInvalidInput
	}
	if code := scriptLanguage(text); code != "" {
		return code, nil
	}
	counts := make(map[string]int, len(stopwordHints))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		for code, hints := range stopwordHints {
			for _, hint := range hints {
				if word == hint {
					counts[code]++
				}
			}
		}
	}
	best, bestCount := "en", 0
	for code, n := range counts {
		if n > bestCount || (n == bestCount && code < best && n > 0) {
			best, bestCount = code, n
		}
	}
	return best, nil
}

// scriptLanguage maps dominant non-Latin scripts to a language code.
func scriptLanguage(text string) string {
	var cyrillic, han, arabic, latin, total int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if total == 0 {
		return ""
	}
	switch {
	case cyrillic*2 > total:
		return "ru"
	case han*2 > total:
		return "zh"
	case arabic*2 > total:
		return "ar"
	}
	return ""
}

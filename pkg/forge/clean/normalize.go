// Package clean provides text normalization and content filter stages.
package clean

import (
	"context"
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"']+`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
	blankPattern = regexp.MustCompile(`\n{3,}`)
)

// NormalizeOptions controls which normalization steps run.
type NormalizeOptions struct {
	StripHTML   bool
	ScrubEmails bool
	ScrubURLs   bool
}

// DefaultNormalizeOptions enables every step.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{StripHTML: true, ScrubEmails: true, ScrubURLs: true}
}

// Normalize applies unicode and whitespace normalization to raw text.
// The output uses NFKC form, LF line endings, and collapsed runs of
// spaces and blank lines.
func Normalize(text string, opts NormalizeOptions) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if opts.StripHTML {
		text = StripTags(text)
	}
	text = html.UnescapeString(text)
	if opts.ScrubURLs {
		text = urlPattern.ReplaceAllString(text, " ")
	}
	if opts.ScrubEmails {
		text = emailPattern.ReplaceAllString(text, " ")
	}
	text = spacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripTags removes HTML markup, keeping text content. Script and style
// bodies are dropped entirely.
func StripTags(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}
	var (
		b    strings.Builder
		skip int
	)
	tok := xhtml.NewTokenizer(strings.NewReader(text))
	for {
		switch tok.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.StartTagToken:
			name, _ := tok.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				skip++
			}
		case xhtml.EndTagToken:
			name, _ := tok.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			}
		case xhtml.TextToken:
			if skip == 0 {
				b.Write(tok.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// NormalizeStage wraps Normalize as a pipeline stage. Documents whose
// text becomes empty after normalization are dropped.
type NormalizeStage struct {
	Options NormalizeOptions
}

// NewNormalizeStage creates a stage with default options.
func NewNormalizeStage() *NormalizeStage {
	return &NormalizeStage{Options: DefaultNormalizeOptions()}
}

func (s *NormalizeStage) Name() string { return "normalize" }

func (s *NormalizeStage) Process(_ context.Context, doc *document.Document) (pipeline.Outcome, error) {
	cleaned := Normalize(doc.Text, s.Options)
	if cleaned == "" {
		return pipeline.DropOutcome("empty after normalization"), nil
	}
	if cleaned == doc.Text {
		return pipeline.PassOutcome(), nil
	}
	return pipeline.TransformOutcome(cleaned), nil
}

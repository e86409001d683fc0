package config

import (
	"fmt"
	"os"

	"github.com/corpusforge/forge/pkg/forge/augment"
	"github.com/corpusforge/forge/pkg/forge/chunk"
	"github.com/corpusforge/forge/pkg/forge/clean"
	"github.com/corpusforge/forge/pkg/forge/export"
	"github.com/corpusforge/forge/pkg/forge/lexicon"
	"github.com/corpusforge/forge/pkg/forge/license"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
	"github.com/corpusforge/forge/pkg/forge/wordlist"
)

// Loader constructs pipeline components from a validated configuration.
type Loader struct {
	File *File

	// Detector overrides the language detector. Nil uses the built-in
	// heuristic detector.
	Detector clean.Detector
}

// Components holds everything a run needs.
type Components struct {
	Plan    pipeline.Plan
	Config  pipeline.Config
	Gate    *license.Gate
	Chunker *chunk.Service
	Export  export.Options
}

// Load builds the stage plan and supporting components.
func (l *Loader) Load() (*Components, error) {
	f := l.File
	if err := f.Validate(); err != nil {
		return nil, err
	}

	comp := &Components{
		Config: f.Pipeline(),
		Export: export.Options{
			Dir:       f.Export.Dir,
			Name:      f.Export.Name,
			Format:    export.Format(f.Export.Format),
			Watermark: f.Export.Watermark,
		},
	}

	// Pre-dedup stages: normalize, then the drop filters.
	if !f.Normalize.Disabled {
		comp.Plan.Before = append(comp.Plan.Before, &clean.NormalizeStage{
			Options: clean.NormalizeOptions{
				StripHTML:   !f.Normalize.KeepHTML,
				ScrubEmails: !f.Normalize.KeepEmails,
				ScrubURLs:   !f.Normalize.KeepURLs,
			},
		})
	}
	if f.Filters.MinTokens > 0 || f.Filters.MaxTokens > 0 {
		comp.Plan.Before = append(comp.Plan.Before, &clean.LengthStage{
			MinTokens: f.Filters.MinTokens,
			MaxTokens: f.Filters.MaxTokens,
		})
	}
	if f.Filters.ProfanityList != "" {
		list, err := wordlist.LoadYAML(f.Filters.ProfanityList)
		if err != nil {
			return nil, fmt.Errorf("load profanity list: %w", err)
		}
		comp.Plan.Before = append(comp.Plan.Before, clean.NewProfanityStage(list))
	}
	if len(f.Filters.Languages) > 0 {
		det := l.Detector
		optional := det != nil
		if det == nil {
			det = clean.NewHeuristicDetector()
		}
		stage := clean.NewLanguageStage(det, f.Filters.Languages)
		if optional {
			// External detectors may be offline; degrade to skip.
			comp.Plan.Before = append(comp.Plan.Before, pipeline.Optional(stage))
		} else {
			comp.Plan.Before = append(comp.Plan.Before, stage)
		}
	}

	comp.Plan.Dedup = true

	// Post-dedup stages: augmentation on the surviving documents.
	if f.Augment.Enabled {
		lex := lexicon.New()
		if f.Augment.LexiconPath != "" {
			loaded, err := lexicon.LoadFromYAML(f.Augment.LexiconPath)
			if err != nil {
				return nil, fmt.Errorf("load lexicon: %w", err)
			}
			lex = loaded
		}
		aug, err := augment.New(augment.Config{
			SynonymRate:      f.Augment.SynonymRate,
			ReorderSentences: f.Augment.ReorderSentences,
			Seed:             f.Augment.Seed,
		}, lex)
		if err != nil {
			return nil, err
		}
		comp.Plan.After = append(comp.Plan.After, augment.NewStage(aug))
	}

	if f.Chunk.Enabled {
		svc, err := chunk.NewService(chunk.Config{
			ChunkSize:      f.Chunk.Size,
			Overlap:        f.Chunk.Overlap,
			MinChunkTokens: f.Chunk.MinTokens,
		})
		if err != nil {
			return nil, err
		}
		comp.Chunker = svc
	}

	if f.License.Path != "" {
		pemData, err := os.ReadFile(f.License.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load license key: %w", err)
		}
		pub, err := license.ParsePublicKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("parse license key: %w", err)
		}
		comp.Gate = &license.Gate{
			Path:       f.License.Path,
			Passphrase: f.License.Passphrase,
			PublicKey:  pub,
		}
	}

	return comp, nil
}

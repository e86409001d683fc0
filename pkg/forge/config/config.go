// Package config loads the YAML run configuration and constructs the
// pipeline components it describes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corpusforge/forge/pkg/forge/dedup"
	"github.com/corpusforge/forge/pkg/forge/export"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
)

// Duration parses YAML durations written either as Go duration strings
// ("30s", "1m") or as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// File is the top-level YAML configuration.
type File struct {
	Workers      int      `yaml:"workers"`
	StageTimeout Duration `yaml:"stage_timeout"`

	Inputs []string `yaml:"inputs"`

	Dedup     DedupConfig     `yaml:"dedup"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Filters   FilterConfig    `yaml:"filters"`
	Augment   AugmentConfig   `yaml:"augment"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Export    ExportConfig    `yaml:"export"`
	License   LicenseConfig   `yaml:"license"`
	Store     StoreConfig     `yaml:"store"`

	// CheckpointPath is the bbolt file for resumable runs. Empty
	// disables checkpointing.
	CheckpointPath string `yaml:"checkpoint_path"`
}

// DedupConfig mirrors the signature, banding, and resolver settings.
type DedupConfig struct {
	ShingleSize  int     `yaml:"shingle_size"`
	NumHashes    int     `yaml:"num_hashes"`
	CacheSize    int     `yaml:"cache_size"`
	Bands        int     `yaml:"bands"`
	Rows         int     `yaml:"rows"`
	Threshold    float64 `yaml:"threshold"`
	Verification string  `yaml:"verification"`
}

// NormalizeConfig toggles normalization steps.
type NormalizeConfig struct {
	Disabled   bool `yaml:"disabled"`
	KeepHTML   bool `yaml:"keep_html"`
	KeepEmails bool `yaml:"keep_emails"`
	KeepURLs   bool `yaml:"keep_urls"`
}

// FilterConfig configures the drop filters.
type FilterConfig struct {
	ProfanityList string   `yaml:"profanity_list"`
	Languages     []string `yaml:"languages"`
	MinTokens     int      `yaml:"min_tokens"`
	MaxTokens     int      `yaml:"max_tokens"`
}

// AugmentConfig configures the augmentation stage.
type AugmentConfig struct {
	Enabled          bool    `yaml:"enabled"`
	LexiconPath      string  `yaml:"lexicon"`
	SynonymRate      float64 `yaml:"synonym_rate"`
	ReorderSentences bool    `yaml:"reorder_sentences"`
	Seed             uint64  `yaml:"seed"`
}

// ChunkConfig configures token window chunking.
type ChunkConfig struct {
	Enabled   bool `yaml:"enabled"`
	Size      int  `yaml:"size"`
	Overlap   int  `yaml:"overlap"`
	MinTokens int  `yaml:"min_tokens"`
}

// ExportConfig configures the dataset writers.
type ExportConfig struct {
	Dir       string `yaml:"dir"`
	Name      string `yaml:"name"`
	Format    string `yaml:"format"`
	Watermark bool   `yaml:"watermark"`
}

// LicenseConfig points at the license file and verification key.
type LicenseConfig struct {
	Path          string `yaml:"path"`
	Passphrase    string `yaml:"passphrase"`
	PublicKeyPath string `yaml:"public_key"`
}

// StoreConfig selects the metadata store. An empty path uses the
// in-memory store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := Defaults()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Defaults returns a configuration with every default filled in.
func Defaults() *File {
	sig := dedup.DefaultSignatureConfig()
	lsh := dedup.DefaultLSHConfig()
	res := dedup.DefaultResolverConfig()
	return &File{
		Workers: 4,
		Dedup: DedupConfig{
			ShingleSize:  sig.ShingleSize,
			NumHashes:    sig.NumHashes,
			CacheSize:    sig.CacheSize,
			Bands:        lsh.Bands,
			Rows:         lsh.Rows,
			Threshold:    res.Threshold,
			Verification: string(res.Verification),
		},
		Augment: AugmentConfig{SynonymRate: 0.05, ReorderSentences: true},
		Chunk:   ChunkConfig{Size: 512, MinTokens: 16},
		Export:  ExportConfig{Name: "dataset", Format: "jsonl"},
	}
}

// Pipeline converts the dedup settings into a pipeline configuration.
func (f *File) Pipeline() pipeline.Config {
	return pipeline.Config{
		Workers:      f.Workers,
		StageTimeout: time.Duration(f.StageTimeout),
		Signature: dedup.SignatureConfig{
			ShingleSize: f.Dedup.ShingleSize,
			NumHashes:   f.Dedup.NumHashes,
			CacheSize:   f.Dedup.CacheSize,
		},
		LSH: dedup.LSHConfig{
			Bands: f.Dedup.Bands,
			Rows:  f.Dedup.Rows,
		},
		Resolver: dedup.ResolverConfig{
			Threshold:    f.Dedup.Threshold,
			Verification: dedup.Verification(f.Dedup.Verification),
		},
	}
}

// Validate checks every section, surfacing configuration errors before
// any processing starts.
func (f *File) Validate() error {
	if err := f.Pipeline().Validate(); err != nil {
		return err
	}
	if f.Export.Format != "" {
		switch export.Format(f.Export.Format) {
		case export.FormatJSONL, export.FormatText, export.FormatCSV, export.FormatParquet:
		default:
			return &internalerr.ConfigError{
				Field:  "export.format",
				Reason: fmt.Sprintf("unknown format %q", f.Export.Format),
			}
		}
	}
	if f.Augment.Enabled {
		if f.Augment.SynonymRate < 0 || f.Augment.SynonymRate > 1 {
			return &internalerr.ConfigError{
				Field:  "augment.synonym_rate",
				Reason: fmt.Sprintf("must be in [0,1], got %g", f.Augment.SynonymRate),
			}
		}
	}
	if f.Chunk.Enabled {
		if f.Chunk.Size <= 0 {
			return &internalerr.ConfigError{
				Field:  "chunk.size",
				Reason: fmt.Sprintf("must be positive, got %d", f.Chunk.Size),
			}
		}
		if f.Chunk.Overlap < 0 || f.Chunk.Overlap >= f.Chunk.Size {
			return &internalerr.ConfigError{
				Field:  "chunk.overlap",
				Reason: fmt.Sprintf("must be in [0, chunk size), got %d", f.Chunk.Overlap),
			}
		}
	}
	if f.License.Path != "" && f.License.PublicKeyPath == "" {
		return &internalerr.ConfigError{
			Field:  "license.public_key",
			Reason: "required when a license path is set",
		}
	}
	return nil
}

// Package chunk splits documents into fixed-size token windows using
// the cl100k_base BPE encoding.
package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// Encoding is the BPE vocabulary used for chunking.
const Encoding = "cl100k_base"

// Config controls chunk sizing.
type Config struct {
	// ChunkSize is the token window length.
	ChunkSize int

	// Overlap is how many tokens consecutive windows share.
	Overlap int

	// MinChunkTokens drops a trailing window shorter than this.
	// Zero keeps every remainder.
	MinChunkTokens int
}

// DefaultConfig mirrors the sizing used for training set preparation.
func DefaultConfig() Config {
	return Config{ChunkSize: 512, Overlap: 0, MinChunkTokens: 16}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return &internalerr.ConfigError{
			Field:  "chunk.size",
			Reason: fmt.Sprintf("must be positive, got %d", c.ChunkSize),
		}
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return &internalerr.ConfigError{
			Field:  "chunk.overlap",
			Reason: fmt.Sprintf("must be in [0, chunk size), got %d", c.Overlap),
		}
	}
	if c.MinChunkTokens < 0 {
		return &internalerr.ConfigError{
			Field:  "chunk.min_tokens",
			Reason: fmt.Sprintf("must be non-negative, got %d", c.MinChunkTokens),
		}
	}
	return nil
}

// Chunk is one token window of a source document.
type Chunk struct {
	Ordinal    int64  `json:"ordinal"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Service chunks documents with a shared encoder instance. The tiktoken
// codec is safe for concurrent use, so one Service serves all workers.
type Service struct {
	cfg Config
	enc *tiktoken.Tiktoken
}

// NewService creates a chunking service, loading the BPE encoding.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", Encoding, err)
	}
	return &Service{cfg: cfg, enc: enc}, nil
}

// Encode converts text into token IDs.
func (s *Service) Encode(text string) []int {
	return s.enc.Encode(text, nil, nil)
}

// Decode converts token IDs back into text.
func (s *Service) Decode(tokens []int) string {
	return s.enc.Decode(tokens)
}

// Count returns the number of tokens in the text.
func (s *Service) Count(text string) int {
	return len(s.Encode(text))
}

// Split chunks a document into token windows. Chunk indexes start at
// zero and follow text order.
func (s *Service) Split(doc *document.Document) []Chunk {
	tokens := s.Encode(doc.Text)
	if len(tokens) == 0 {
		return nil
	}
	step := s.cfg.ChunkSize - s.cfg.Overlap
	chunks := make([]Chunk, 0, (len(tokens)+step-1)/step)
	for start, idx := 0, 0; start < len(tokens); start, idx = start+step, idx+1 {
		end := start + s.cfg.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		if idx > 0 && len(window) < s.cfg.MinChunkTokens {
			break
		}
		chunks = append(chunks, Chunk{
			Ordinal:    doc.Ordinal,
			Index:      idx,
			Text:       s.Decode(window),
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// SplitAll chunks every document, preserving document order.
func (s *Service) SplitAll(docs []*document.Document) []Chunk {
	var out []Chunk
	for _, doc := range docs {
		out = append(out, s.Split(doc)...)
	}
	return out
}

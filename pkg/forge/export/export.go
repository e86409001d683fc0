// Package export writes processed corpora to disk in several dataset
// formats, together with chunk dumps and run metadata.
package export

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/corpusforge/forge/pkg/forge/chunk"
	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// Format selects the dataset file layout.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatText    Format = "txt"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Options controls an export.
type Options struct {
	// Dir is the output directory, created if missing.
	Dir string

	// Name is the dataset name, used for file naming and metadata.
	Name string

	// Format selects the dataset layout. Default jsonl.
	Format Format

	// Watermark appends the zero-width marker to each record's text.
	Watermark bool
}

// Record is one exported document row.
type Record struct {
	Ordinal  int64  `json:"ordinal"`
	Hash     string `json:"hash"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Metadata describes a finished export, written as metadata.json.
type Metadata struct {
	Name        string         `json:"name"`
	Format      Format         `json:"format"`
	Documents   int            `json:"documents"`
	Chunks      int            `json:"chunks"`
	Languages   map[string]int `json:"languages,omitempty"`
	DatasetHash string         `json:"dataset_hash"`
	Watermarked bool           `json:"watermarked"`
	ExportedAt  time.Time      `json:"exported_at"`
}

// Result reports what an export produced.
type Result struct {
	DatasetPath  string
	ChunksPath   string
	MetadataPath string
	Metadata     Metadata
}

// DatasetHash computes the SHA-256 content hash of a document set. The
// hash covers ordinals and text in ordinal order, so it identifies the
// dataset independent of export format.
func DatasetHash(docs []*document.Document) string {
	h := sha256.New()
	for _, doc := range docs {
		h.Write([]byte(strconv.FormatInt(doc.Ordinal, 10)))
		h.Write([]byte{0})
		h.Write([]byte(doc.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Export writes the surviving documents, their chunks, and metadata.
func Export(docs []*document.Document, chunks []chunk.Chunk, opts Options) (*Result, error) {
	if opts.Dir == "" {
		return nil, &internalerr.ConfigError{Field: "export.dir", Reason: "must not be empty"}
	}
	if opts.Name == "" {
		opts.Name = "dataset"
	}
	if opts.Format == "" {
		opts.Format = FormatJSONL
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}

	sorted := make([]*document.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	hash := DatasetHash(sorted)
	records := make([]Record, len(sorted))
	mark := ""
	if opts.Watermark {
		mark = Watermark(hash)
	}
	languages := make(map[string]int)
	for i, doc := range sorted {
		records[i] = Record{
			Ordinal:  doc.Ordinal,
			Hash:     doc.ContentHash,
			Text:     doc.Text + mark,
			Language: doc.Language,
			Source:   doc.Source,
		}
		if doc.Language != "" {
			languages[doc.Language]++
		}
	}

	datasetPath := filepath.Join(opts.Dir, opts.Name+"."+string(opts.Format))
	var err error
	switch opts.Format {
	case FormatJSONL:
		err = writeJSONL(datasetPath, records)
	case FormatText:
		err = writeText(datasetPath, records)
	case FormatCSV:
		err = writeCSV(datasetPath, records)
	case FormatParquet:
		err = writeParquet(datasetPath, records)
	default:
		return nil, &internalerr.ConfigError{
			Field:  "export.format",
			Reason: fmt.Sprintf("unknown format %q", opts.Format),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}

	chunksPath := ""
	if len(chunks) > 0 {
		chunksPath = filepath.Join(opts.Dir, "chunks.jsonl")
		if err := writeChunks(chunksPath, chunks); err != nil {
			return nil, fmt.Errorf("write chunks: %w", err)
		}
	}

	meta := Metadata{
		Name:        opts.Name,
		Format:      opts.Format,
		Documents:   len(records),
		Chunks:      len(chunks),
		Languages:   languages,
		DatasetHash: hash,
		Watermarked: opts.Watermark,
		ExportedAt:  time.Now().UTC(),
	}
	metaPath := filepath.Join(opts.Dir, "metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &Result{
		DatasetPath:  datasetPath,
		ChunksPath:   chunksPath,
		MetadataPath: metaPath,
		Metadata:     meta,
	}, nil
}

func writeJSONL(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return f.Close()
}

func writeText(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, rec := range records {
		if _, err := f.WriteString(rec.Text + "\n"); err != nil {
			return err
		}
	}
	return f.Close()
}

func writeCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"ordinal", "hash", "text", "language", "source"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.Ordinal, 10),
			rec.Hash,
			rec.Text,
			rec.Language,
			rec.Source,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// parquetRecord mirrors Record with parquet type tags.
type parquetRecord struct {
	Ordinal  int64  `parquet:"name=ordinal, type=INT64"`
	Hash     string `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Text     string `parquet:"name=text, type=BYTE_ARRAY, convertedtype=UTF8"`
	Language string `parquet:"name=language, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source   string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, records []Record) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("open parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 2)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	for _, rec := range records {
		row := parquetRecord{
			Ordinal:  rec.Ordinal,
			Hash:     rec.Hash,
			Text:     rec.Text,
			Language: rec.Language,
			Source:   rec.Source,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return fw.Close()
}

func writeChunks(path string, chunks []chunk.Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return f.Close()
}

func writeMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

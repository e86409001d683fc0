// Package importer loads raw corpora from txt, csv, jsonl, parquet,
// and zip sources into documents.
package importer

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// textKeys are the column or object keys recognized as document text,
// in preference order.
var textKeys = []string{"text", "content", "body"}

// Importer reads one source into documents. Importers are single-use:
// construct a fresh one per run.
type Importer interface {
	// Import reads every document, assigning ordinals from next
	// upward, and returns the documents plus the next free ordinal.
	Import(next int64) ([]*document.Document, int64, error)
}

// Open picks an importer by file extension.
func Open(path string) (Importer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return &TextImporter{Path: path}, nil
	case ".csv":
		return &CSVImporter{Path: path}, nil
	case ".jsonl", ".ndjson":
		return &JSONLImporter{Path: path}, nil
	case ".parquet":
		return &ParquetImporter{Path: path}, nil
	case ".zip":
		return &ZipImporter{Path: path}, nil
	}
	return nil, fmt.Errorf("%w: unsupported source %q", internalerr.ErrInvalidInput, path)
}

// ImportAll runs importers over the given paths in order, producing a
// collection with contiguous ordinals starting at 1.
func ImportAll(paths ...string) (*document.Collection, error) {
	coll := document.NewCollection()
	next := int64(1)
	for _, path := range paths {
		imp, err := Open(path)
		if err != nil {
			return nil, err
		}
		docs, n, err := imp.Import(next)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		next = n
		for _, doc := range docs {
			coll.Add(doc)
		}
	}
	return coll, nil
}

// TextImporter reads one document per non-blank line.
type TextImporter struct {
	Path string
}

func (t *TextImporter) Import(next int64) ([]*document.Document, int64, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, next, err
	}
	defer f.Close()
	return readLines(f, filepath.Base(t.Path), next)
}

func readLines(r io.Reader, source string, next int64) ([]*document.Document, int64, error) {
	var docs []*document.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		docs = append(docs, document.New(next, line, source))
		next++
	}
	if err := sc.Err(); err != nil {
		return nil, next, err
	}
	return docs, next, nil
}

// CSVImporter reads the text column of a headered CSV file.
type CSVImporter struct {
	Path string

	// Column overrides the recognized text column names.
	Column string
}

func (c *CSVImporter) Import(next int64) ([]*document.Document, int64, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, next, err
	}
	defer f.Close()
	return c.read(f, filepath.Base(c.Path), next)
}

func (c *CSVImporter) read(r io.Reader, source string, next int64) ([]*document.Document, int64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, next, nil
		}
		return nil, next, err
	}

	col := -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if c.Column != "" {
			if name == strings.ToLower(c.Column) {
				col = i
			}
			continue
		}
		for _, key := range textKeys {
			if name == key && col == -1 {
				col = i
			}
		}
	}
	if col == -1 {
		return nil, next, fmt.Errorf("%w: no text column in header %v", internalerr.ErrInvalidInput, header)
	}

	var docs []*document.Document
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, next, err
		}
		if col >= len(record) {
			continue
		}
		text := strings.TrimSpace(record[col])
		if text == "" {
			continue
		}
		docs = append(docs, document.New(next, text, source))
		next++
	}
	return docs, next, nil
}

// JSONLImporter reads one JSON object per line, taking the first
// recognized text key.
type JSONLImporter struct {
	Path string
}

func (j *JSONLImporter) Import(next int64) ([]*document.Document, int64, error) {
	f, err := os.Open(j.Path)
	if err != nil {
		return nil, next, err
	}
	defer f.Close()
	return readJSONL(f, filepath.Base(j.Path), next)
}

func readJSONL(r io.Reader, source string, next int64) ([]*document.Document, int64, error) {
	var docs []*document.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, next, fmt.Errorf("%w: line %d: %v", internalerr.ErrInvalidInput, line, err)
		}
		text := ""
		for _, key := range textKeys {
			if rawVal, ok := obj[key]; ok {
				if err := json.Unmarshal(rawVal, &text); err == nil && text != "" {
					break
				}
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, document.New(next, strings.TrimSpace(text), source))
		next++
	}
	if err := sc.Err(); err != nil {
		return nil, next, err
	}
	return docs, next, nil
}

// parquetRow is the row shape read from parquet sources.
type parquetRow struct {
	Text string `parquet:"name=text, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetImporter reads the text column of a parquet file.
type ParquetImporter struct {
	Path string
}

func (p *ParquetImporter) Import(next int64) ([]*document.Document, int64, error) {
	fr, err := local.NewLocalFileReader(p.Path)
	if err != nil {
		return nil, next, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetRow), 2)
	if err != nil {
		return nil, next, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	source := filepath.Base(p.Path)
	var docs []*document.Document
	const batch = 1024
	remaining := pr.GetNumRows()
	for remaining > 0 {
		n := int64(batch)
		if remaining < n {
			n = remaining
		}
		rows := make([]parquetRow, n)
		if err := pr.Read(&rows); err != nil {
			return nil, next, fmt.Errorf("read parquet rows: %w", err)
		}
		for _, row := range rows {
			text := strings.TrimSpace(row.Text)
			if text == "" {
				continue
			}
			docs = append(docs, document.New(next, text, source))
			next++
		}
		remaining -= n
	}
	return docs, next, nil
}

// ZipImporter recurses into txt, csv, and jsonl entries of an archive.
// Entries are visited in name order so ordinals are stable.
type ZipImporter struct {
	Path string
}

func (z *ZipImporter) Import(next int64) ([]*document.Document, int64, error) {
	zr, err := zip.OpenReader(z.Path)
	if err != nil {
		return nil, next, err
	}
	defer zr.Close()

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".txt", ".csv", ".jsonl", ".ndjson":
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	archive := filepath.Base(z.Path)
	var docs []*document.Document
	for _, f := range files {
		entry, err := f.Open()
		if err != nil {
			return nil, next, err
		}
		source := archive + "/" + f.Name
		var (
			part []*document.Document
			rerr error
		)
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".txt":
			part, next, rerr = readLines(entry, source, next)
		case ".csv":
			c := &CSVImporter{}
			part, next, rerr = c.read(entry, source, next)
		default:
			part, next, rerr = readJSONL(entry, source, next)
		}
		entry.Close()
		if rerr != nil {
			return nil, next, fmt.Errorf("entry %s: %w", f.Name, rerr)
		}
		docs = append(docs, part...)
	}
	return docs, next, nil
}

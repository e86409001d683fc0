// Package document defines the document record that flows through the
// pipeline: stable identity assigned at ingestion, raw text, processing
// state, and an ordered audit trail of stage outcomes.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// State tracks where a document is in its pipeline traversal.
type State int

const (
	StatePending State = iota
	StateFiltered
	StateSigned
	StateKept
	StateDropped
	StateFailed
	StateExported
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFiltered:
		return "filtered"
	case StateSigned:
		return "signed"
	case StateKept:
		return "kept"
	case StateDropped:
		return "dropped"
	case StateFailed:
		return "failed"
	case StateExported:
		return "exported"
	default:
		return "unknown"
	}
}

// Annotation records the outcome of one stage for audit purposes.
type Annotation struct {
	Stage   string
	Outcome string
}

// Document is one unit of text moving through the pipeline. Identity
// (Ordinal, ContentHash) is immutable after ingestion; Text is owned by
// the document until a transform stage derives a replacement.
type Document struct {
	Ordinal     int64
	ContentHash string
	Text        string
	Language    string
	Source      string
	Metadata    map[string]string

	State       State
	Reason      string
	Signature   []uint64
	Annotations []Annotation
}

// New creates a pending document with a content-derived hash identity.
func New(ordinal int64, text, source string) *Document {
	return &Document{
		Ordinal:     ordinal,
		ContentHash: HashText(text),
		Text:        text,
		Source:      source,
		State:       StatePending,
	}
}

// HashText returns the hex SHA-256 of the given text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Annotate appends a stage outcome to the audit trail.
func (d *Document) Annotate(stage, outcome string) {
	d.Annotations = append(d.Annotations, Annotation{Stage: stage, Outcome: outcome})
}

// Derive produces a new document carrying the same identity but transformed
// text. The audit trail is copied so downstream stages see the full history.
func (d *Document) Derive(text string) *Document {
	out := &Document{
		Ordinal:     d.Ordinal,
		ContentHash: d.ContentHash,
		Text:        text,
		Language:    d.Language,
		Source:      d.Source,
		Metadata:    d.Metadata,
		State:       d.State,
		Annotations: append([]Annotation(nil), d.Annotations...),
	}
	return out
}

// MarkFiltered records a filter drop with its reason.
func (d *Document) MarkFiltered(stage, reason string) {
	d.State = StateFiltered
	d.Reason = reason
	d.Annotate(stage, "drop: "+reason)
}

// MarkFailed records an isolated per-document stage failure.
func (d *Document) MarkFailed(stage string, cause error) {
	d.State = StateFailed
	d.Reason = fmt.Sprintf("%s: %v", stage, cause)
	d.Annotate(stage, "failed: "+cause.Error())
}

// MarkDropped records a dedup drop referencing the kept representative.
func (d *Document) MarkDropped(keptOrdinal int64) {
	d.State = StateDropped
	d.Reason = fmt.Sprintf("duplicate of %d", keptOrdinal)
	d.Annotate("dedup", d.Reason)
}

// Alive reports whether the document is still eligible for downstream stages.
func (d *Document) Alive() bool {
	switch d.State {
	case StateFiltered, StateDropped, StateFailed:
		return false
	}
	return true
}

// Package pipeline drives an ordered sequence of processing stages over a
// document collection: parallel per-document filter and transform stages,
// a dedup stage built on the minhash/LSH engine, cooperative cancellation
// at document boundaries, checkpoint/resume, and per-document failure
// isolation. Results are deterministic for a given input set and
// configuration regardless of worker scheduling.
package pipeline

import (
	"context"

	"github.com/corpusforge/forge/pkg/forge/document"
)

// OutcomeKind tags the result of one stage processing one document.
type OutcomeKind int

const (
	// Pass keeps the document unchanged.
	Pass OutcomeKind = iota
	// Drop removes the document with a reason.
	Drop
	// Transform replaces the document's text with zero or more derived
	// texts. Zero replacements drops the document.
	Transform
)

// Outcome is the tagged result of Stage.Process. No runtime type
// inspection: stages declare what happened through the kind.
type Outcome struct {
	Kind         OutcomeKind
	Reason       string
	Replacements []string
}

// PassOutcome keeps the document.
func PassOutcome() Outcome { return Outcome{Kind: Pass} }

// DropOutcome removes the document with the given reason.
func DropOutcome(reason string) Outcome { return Outcome{Kind: Drop, Reason: reason} }

// TransformOutcome replaces the document text with the given derivations.
func TransformOutcome(texts ...string) Outcome {
	return Outcome{Kind: Transform, Replacements: texts}
}

// Stage processes one document at a time. Implementations must be safe
// for concurrent Process calls on distinct documents and must not retain
// the document past the call.
type Stage interface {
	Name() string
	Process(ctx context.Context, d *document.Document) (Outcome, error)
}

// ReadyChecker is implemented by stages that depend on an external
// collaborator. Ready is consulted once before the run starts; an error
// fails the run unless the stage is marked optional, in which case the
// stage is skipped.
type ReadyChecker interface {
	Ready() error
}

// optionalStage wraps a stage whose collaborator may be absent.
type optionalStage struct {
	Stage
}

// Optional marks a stage as skippable when its collaborator is
// unavailable.
func Optional(s Stage) Stage { return optionalStage{Stage: s} }

func isOptional(s Stage) bool {
	_, ok := s.(optionalStage)
	return ok
}

func stageReady(s Stage) error {
	inner := s
	if o, ok := s.(optionalStage); ok {
		inner = o.Stage
	}
	if rc, ok := inner.(ReadyChecker); ok {
		return rc.Ready()
	}
	return nil
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, d *document.Document) (Outcome, error)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Process(ctx context.Context, d *document.Document) (Outcome, error) {
	return s.Fn(ctx, d)
}

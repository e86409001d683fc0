package pipeline

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/corpusforge/forge/pkg/forge/dedup"
	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// dedupStageName is the reserved name of the built-in dedup stage.
const dedupStageName = "dedup"

// StageCount reports per-stage progress counters.
type StageCount struct {
	Stage     string
	Processed int64
	Kept      int64
	Dropped   int64
	Failed    int64
}

// stageCounter accumulates counts from parallel workers.
type stageCounter struct {
	stage     string
	processed atomic.Int64
	kept      atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func (c *stageCounter) snapshot() StageCount {
	return StageCount{
		Stage:     c.stage,
		Processed: c.processed.Load(),
		Kept:      c.kept.Load(),
		Dropped:   c.dropped.Load(),
		Failed:    c.failed.Load(),
	}
}

// RunResult is the structured summary every run ends with. Partial
// results up to a failure or cancellation are retained.
type RunResult struct {
	RunID     string
	Status    RunStatus
	Err       error
	Stages    []StageCount
	Survivors []*document.Document
}

// FailedCount sums per-document failures across stages.
func (r *RunResult) FailedCount() int64 {
	var n int64
	for _, s := range r.Stages {
		n += s.Failed
	}
	return n
}

// Gate authorizes a run before any stage starts. A denial fails the run
// without processing anything.
type Gate interface {
	Authorize(ctx context.Context) error
}

// ProgressFunc observes per-stage progress. It must not influence
// scheduling or results; it is called after each document completes.
type ProgressFunc func(stage string, done, total int64)

// PreviewFunc receives a small sample of surviving texts after a stage
// completes. Observational only, like ProgressFunc.
type PreviewFunc func(stage string, sample []string)

const (
	previewDocs  = 5
	previewRunes = 400
)

// Config controls one orchestrator.
type Config struct {
	// Workers bounds the per-stage worker pool. Values below 1 mean 1.
	Workers int

	// StageTimeout bounds a single stage call for a single document.
	// Exceeding it is a per-document failure, not a run failure. Zero
	// disables the bound.
	StageTimeout time.Duration

	Signature dedup.SignatureConfig
	LSH       dedup.LSHConfig
	Resolver  dedup.ResolverConfig
}

// DefaultConfig returns a single-machine default.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		Signature: dedup.DefaultSignatureConfig(),
		LSH:       dedup.DefaultLSHConfig(),
		Resolver:  dedup.DefaultResolverConfig(),
	}
}

// Validate surfaces configuration errors before any processing starts.
func (c Config) Validate() error {
	if err := c.Signature.Validate(); err != nil {
		return err
	}
	if err := c.LSH.Validate(c.Signature.NumHashes); err != nil {
		return err
	}
	return c.Resolver.Validate()
}

// Plan declares the fixed stage order of a run: per-document stages
// before dedup, the built-in dedup stage, and per-document stages after.
type Plan struct {
	Before []Stage
	Dedup  bool
	After  []Stage
}

func (p Plan) names() []string {
	var names []string
	for _, s := range p.Before {
		names = append(names, s.Name())
	}
	if p.Dedup {
		names = append(names, dedupStageName)
	}
	for _, s := range p.After {
		names = append(names, s.Name())
	}
	return names
}

func (p Plan) validate() error {
	seen := make(map[string]struct{})
	for _, name := range p.names() {
		if name == "" {
			return internalerr.NewConfigError("stages", "stage with empty name")
		}
		if _, dup := seen[name]; dup {
			return internalerr.NewConfigError("stages", "duplicate stage name "+name)
		}
		seen[name] = struct{}{}
	}
	for _, s := range p.Before {
		if s.Name() == dedupStageName {
			return internalerr.NewConfigError("stages", "stage name dedup is reserved")
		}
	}
	for _, s := range p.After {
		if s.Name() == dedupStageName {
			return internalerr.NewConfigError("stages", "stage name dedup is reserved")
		}
	}
	return nil
}

// Options wires an orchestrator's dependencies.
type Options struct {
	Config      Config
	Gate        Gate
	Checkpoints *CheckpointStore
	Logger      zerolog.Logger
	Progress    ProgressFunc
	Preview     PreviewFunc
}

// Orchestrator drives runs. Safe to reuse across sequential runs.
type Orchestrator struct {
	cfg         Config
	engine      *dedup.Engine
	resolver    *dedup.Resolver
	gate        Gate
	checkpoints *CheckpointStore
	log         zerolog.Logger
	progress    ProgressFunc
	preview     PreviewFunc
	entropy     *ulid.MonotonicEntropy
}

// New validates the configuration and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	engine, err := dedup.NewEngine(opts.Config.Signature)
	if err != nil {
		return nil, err
	}
	resolver, err := dedup.NewResolver(opts.Config.Resolver, engine)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:         opts.Config,
		engine:      engine,
		resolver:    resolver,
		gate:        opts.Gate,
		checkpoints: opts.Checkpoints,
		log:         opts.Logger,
		progress:    opts.Progress,
		preview:     opts.Preview,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Fingerprint identifies a (config, plan) pair for checkpoint resume.
func (o *Orchestrator) Fingerprint(plan Plan) string {
	payload, _ := json.Marshal(struct {
		Config Config   `json:"config"`
		Stages []string `json:"stages"`
	}{o.cfg, plan.names()})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Run executes the plan over the collection. It always returns a
// RunResult with a terminal status; the error return is non-nil only for
// run-level failures (the same error is also recorded in the result).
// Cancellation is not an error: the result carries StatusCancelled,
// partial counts, and a saved checkpoint for resumption.
func (o *Orchestrator) Run(ctx context.Context, coll *document.Collection, plan Plan) (*RunResult, error) {
	runID := ulid.MustNew(ulid.Now(), o.entropy).String()
	result := &RunResult{RunID: runID}
	log := o.log.With().Str("run_id", runID).Logger()

	fail := func(err error) (*RunResult, error) {
		result.Status = StatusFailed
		result.Err = err
		result.Survivors = coll.Alive()
		log.Error().Err(err).Msg("run failed")
		return result, err
	}

	if err := plan.validate(); err != nil {
		return fail(err)
	}

	if o.gate != nil {
		if err := o.gate.Authorize(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", internalerr.ErrLicenseDenied, err))
		}
	}

	// Resume point: stage index to start from and, for that stage, the
	// documents already processed by an earlier cancelled run.
	fingerprint := o.Fingerprint(plan)
	startStage := 0
	var skip map[int64]struct{}
	if o.checkpoints != nil {
		snap, found, err := o.checkpoints.Load(fingerprint)
		if err != nil {
			return fail(err)
		}
		if found && snap.Fingerprint == fingerprint {
			startStage = snap.StageIndex
			skip = snap.processedSet()
			log.Info().Int("stage_index", startStage).Int("already_processed", len(skip)).
				Msg("resuming from checkpoint")
		}
	}

	stageNames := plan.names()

	type step struct {
		name  string
		stage Stage // nil for the built-in dedup stage
	}
	var steps []step
	for _, s := range plan.Before {
		steps = append(steps, step{name: s.Name(), stage: s})
	}
	if plan.Dedup {
		steps = append(steps, step{name: dedupStageName})
	}
	for _, s := range plan.After {
		steps = append(steps, step{name: s.Name(), stage: s})
	}

	for i, st := range steps {
		counter := &stageCounter{stage: st.name}
		if i < startStage {
			// Completed by the run being resumed.
			result.Stages = append(result.Stages, counter.snapshot())
			continue
		}

		// Cancellation is checked between stages and, inside the stage
		// runners, between documents. Never mid-document.
		if err := ctx.Err(); err != nil {
			return o.cancelled(result, coll, fingerprint, stageNames, i, nil, log)
		}

		stageSkip := skip
		if i != startStage {
			stageSkip = nil
		}

		rec := newRecorder(stageSkip)
		var err error
		if st.stage == nil {
			err = o.runDedup(ctx, coll, rec, counter)
		} else {
			err = o.runStage(ctx, st.stage, coll, rec, counter)
		}
		counts := counter.snapshot()
		result.Stages = append(result.Stages, counts)

		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(result, coll, fingerprint, stageNames, i, rec, log)
			}
			return fail(err)
		}

		log.Info().Str("stage", st.name).
			Int64("processed", counts.Processed).
			Int64("kept", counts.Kept).
			Int64("dropped", counts.Dropped).
			Int64("failed", counts.Failed).
			Msg("stage complete")
		o.emitPreview(st.name, coll)

		if o.checkpoints != nil {
			snap := Snapshot{RunID: runID, Fingerprint: fingerprint, StageIndex: i + 1}
			if err := o.checkpoints.Save(snap); err != nil {
				return fail(err)
			}
		}
	}

	if o.checkpoints != nil {
		if err := o.checkpoints.Clear(fingerprint); err != nil {
			return fail(err)
		}
	}

	result.Status = StatusCompleted
	result.Survivors = coll.Alive()
	log.Info().Int("survivors", len(result.Survivors)).Msg("run complete")
	return result, nil
}

// cancelled finalizes a cooperatively cancelled run: results so far are
// retained, stages that never ran report zero counts, and a checkpoint
// is saved for resumption.
func (o *Orchestrator) cancelled(result *RunResult, coll *document.Collection, fingerprint string, stageNames []string, stageIndex int, rec *recorder, log zerolog.Logger) (*RunResult, error) {
	for i := len(result.Stages); i < len(stageNames); i++ {
		result.Stages = append(result.Stages, StageCount{Stage: stageNames[i]})
	}
	if o.checkpoints != nil {
		snap := Snapshot{RunID: result.RunID, Fingerprint: fingerprint, StageIndex: stageIndex}
		if rec != nil {
			snap.Processed = rec.all()
		}
		if err := o.checkpoints.Save(snap); err != nil {
			result.Status = StatusFailed
			result.Err = err
			return result, err
		}
	}
	result.Status = StatusCancelled
	result.Survivors = coll.Alive()
	log.Warn().Int("stage_index", stageIndex).Msg("run cancelled")
	return result, nil
}

// emitPreview hands the first few surviving texts to the preview
// callback, truncated so a single long document cannot flood it.
func (o *Orchestrator) emitPreview(stage string, coll *document.Collection) {
	if o.preview == nil {
		return
	}
	alive := coll.Alive()
	if len(alive) > previewDocs {
		alive = alive[:previewDocs]
	}
	sample := make([]string, 0, len(alive))
	for _, d := range alive {
		text := d.Text
		if runes := []rune(text); len(runes) > previewRunes {
			text = string(runes[:previewRunes])
		}
		sample = append(sample, text)
	}
	o.preview(stage, sample)
}

// recorder tracks which ordinals a stage has processed, including those
// carried over from a resumed checkpoint.
type recorder struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func newRecorder(carryOver map[int64]struct{}) *recorder {
	seen := make(map[int64]struct{}, len(carryOver))
	for o := range carryOver {
		seen[o] = struct{}{}
	}
	return &recorder{seen: seen}
}

func (r *recorder) has(ordinal int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[ordinal]
	return ok
}

func (r *recorder) add(ordinal int64) {
	r.mu.Lock()
	r.seen[ordinal] = struct{}{}
	r.mu.Unlock()
}

func (r *recorder) all() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.seen))
	for o := range r.seen {
		out = append(out, o)
	}
	return out
}

// derived collects extra documents produced by transform stages, keyed
// for deterministic ordinal assignment after the fan-in.
type derivedText struct {
	parent int64
	index  int
	text   string
}

// runStage fans one per-document stage out over the worker pool. Per
// document failures are isolated; only cancellation or a run-level
// collaborator failure returns an error.
func (o *Orchestrator) runStage(ctx context.Context, st Stage, coll *document.Collection, rec *recorder, counter *stageCounter) error {
	if err := stageReady(st); err != nil {
		if isOptional(st) {
			o.log.Warn().Str("stage", st.Name()).Err(err).Msg("optional stage skipped")
			return nil
		}
		return fmt.Errorf("stage %s: %w: %v", st.Name(), internalerr.ErrCollaboratorUnavailable, err)
	}

	docs := coll.Alive()
	total := int64(len(docs))

	jobs := make(chan *document.Document, len(docs))
	for _, d := range docs {
		jobs <- d
	}
	close(jobs)

	var (
		mu     sync.Mutex
		extras []derivedText
		done   atomic.Int64
	)
	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for d := range jobs {
				// Document boundary: the only suspension point.
				if err := ctx.Err(); err != nil {
					return err
				}
				if rec.has(d.Ordinal) {
					continue
				}

				extra := o.processDoc(ctx, st, d, coll, counter)
				if len(extra) > 0 {
					mu.Lock()
					extras = append(extras, extra...)
					mu.Unlock()
				}

				rec.add(d.Ordinal)
				if o.progress != nil {
					o.progress(st.Name(), done.Add(1), total)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	// Extras belong to documents whose transform already completed, and
	// those parents are recorded as processed. They must land in the
	// collection even when the pool stopped on cancellation, or a resumed
	// run would skip the parents and lose the variants.
	o.appendDerived(coll, extras, st.Name(), rec)
	return err
}

// processDoc runs one stage over one document, isolating failures and
// applying the outcome. Returns any extra derived texts for deterministic
// post-fan-in ordinal assignment.
func (o *Orchestrator) processDoc(ctx context.Context, st Stage, d *document.Document, coll *document.Collection, counter *stageCounter) []derivedText {
	// The stage call is shielded from run cancellation so a document is
	// never interrupted mid-stage, but still bounded by the per-document
	// timeout.
	docCtx := context.WithoutCancel(ctx)
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(docCtx, o.cfg.StageTimeout)
		defer cancel()
	}

	outcome, err := st.Process(docCtx, d)

	counter.processed.Add(1)
	if err != nil {
		stageErr := internalerr.NewStageError(st.Name(), d.Ordinal, err)
		d.MarkFailed(st.Name(), err)
		counter.failed.Add(1)
		o.log.Warn().Err(stageErr).Msg("document failed; run continues")
		return nil
	}

	switch outcome.Kind {
	case Drop:
		d.MarkFiltered(st.Name(), outcome.Reason)
		counter.dropped.Add(1)
	case Transform:
		if len(outcome.Replacements) == 0 {
			d.MarkFiltered(st.Name(), "transformed away")
			counter.dropped.Add(1)
			return nil
		}
		derived := d.Derive(outcome.Replacements[0])
		derived.Annotate(st.Name(), "transform")
		coll.Replace(derived)
		counter.kept.Add(1)

		var extra []derivedText
		for i, text := range outcome.Replacements[1:] {
			extra = append(extra, derivedText{parent: d.Ordinal, index: i, text: text})
		}
		return extra
	default:
		d.Annotate(st.Name(), "pass")
		counter.kept.Add(1)
	}
	return nil
}

// appendDerived assigns ordinals to extra transform outputs in parent
// order, independent of worker scheduling. New ordinals are recorded as
// processed so a resumed stage does not run them a second time.
func (o *Orchestrator) appendDerived(coll *document.Collection, extras []derivedText, stage string, rec *recorder) {
	if len(extras) == 0 {
		return
	}
	sortDerived(extras)

	next := int64(0)
	for _, d := range coll.Snapshot() {
		if d.Ordinal > next {
			next = d.Ordinal
		}
	}
	for _, e := range extras {
		next++
		nd := document.New(next, e.text, fmt.Sprintf("derived:%d", e.parent))
		nd.Annotate(stage, fmt.Sprintf("derived from %d", e.parent))
		coll.Add(nd)
		rec.add(nd.Ordinal)
	}
}

func sortDerived(extras []derivedText) {
	sort.Slice(extras, func(i, j int) bool {
		if extras[i].parent != extras[j].parent {
			return extras[i].parent < extras[j].parent
		}
		return extras[i].index < extras[j].index
	})
}

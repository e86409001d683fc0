// Package forge is the corpus preparation facade: import, clean,
// dedup, augment, chunk, and export, with run metadata recorded in a
// store.
package forge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/corpusforge/forge/pkg/forge/chunk"
	"github.com/corpusforge/forge/pkg/forge/document"
	"github.com/corpusforge/forge/pkg/forge/export"
	"github.com/corpusforge/forge/pkg/forge/importer"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
	"github.com/corpusforge/forge/pkg/forge/store"
	"github.com/corpusforge/forge/pkg/forge/store/memstore"
)

// Forge drives corpus preparation runs end to end.
type Forge struct {
	orch    *pipeline.Orchestrator
	plan    pipeline.Plan
	chunker *chunk.Service
	export  export.Options
	store   store.Store
	log     zerolog.Logger
}

// Options configures a Forge instance.
type Options struct {
	// Pipeline configures workers, dedup, and timeouts.
	Pipeline pipeline.Config

	// Plan is the stage plan run over every collection.
	Plan pipeline.Plan

	// Gate authorizes runs. Nil permits everything.
	Gate pipeline.Gate

	// Checkpoints enables resumable runs. Nil disables.
	Checkpoints *pipeline.CheckpointStore

	// Chunker splits survivors into token windows. Nil skips chunking.
	Chunker *chunk.Service

	// Export configures the dataset writers. An empty Dir skips export.
	Export export.Options

	// Store records runs and datasets. Nil uses an in-memory store.
	Store store.Store

	Logger   zerolog.Logger
	Progress pipeline.ProgressFunc
	Preview  pipeline.PreviewFunc
}

// New builds a Forge instance, validating the pipeline configuration.
func New(opts Options) (*Forge, error) {
	orch, err := pipeline.New(pipeline.Options{
		Config:      opts.Pipeline,
		Gate:        opts.Gate,
		Checkpoints: opts.Checkpoints,
		Logger:      opts.Logger,
		Progress:    opts.Progress,
		Preview:     opts.Preview,
	})
	if err != nil {
		return nil, err
	}
	st := opts.Store
	if st == nil {
		st = memstore.New()
	}
	return &Forge{
		orch:    orch,
		plan:    opts.Plan,
		chunker: opts.Chunker,
		export:  opts.Export,
		store:   st,
		log:     opts.Logger,
	}, nil
}

// Close releases the store.
func (f *Forge) Close() error {
	return f.store.Close()
}

// Result is the outcome of one end-to-end run.
type Result struct {
	Run      *pipeline.RunResult
	Imported int
	Chunks   []chunk.Chunk
	Export   *export.Result
}

// Run imports the sources, executes the stage plan, and, when the run
// completes, chunks and exports the survivors. Cancelled runs return
// with the partial result and a saved checkpoint; rerunning with the
// same checkpoint store resumes them.
func (f *Forge) Run(ctx context.Context, sources ...string) (*Result, error) {
	coll, err := importer.ImportAll(sources...)
	if err != nil {
		return nil, err
	}
	return f.RunCollection(ctx, coll)
}

// RunCollection is Run over an already imported collection.
func (f *Forge) RunCollection(ctx context.Context, coll *document.Collection) (*Result, error) {
	started := time.Now().UTC()
	imported := coll.Len()

	runResult, runErr := f.orch.Run(ctx, coll, f.plan)
	result := &Result{Run: runResult, Imported: imported}

	record := store.Run{
		ID:        runResult.RunID,
		Dataset:   f.export.Name,
		Status:    string(runResult.Status),
		Imported:  imported,
		Survivors: len(runResult.Survivors),
		Failed:    int(runResult.FailedCount()),
		StartedAt: started,
	}
	if runResult.Err != nil {
		record.Error = runResult.Err.Error()
	}

	if runErr != nil || runResult.Status != pipeline.StatusCompleted {
		record.FinishedAt = time.Now().UTC()
		f.recordRun(ctx, record)
		return result, runErr
	}

	if f.chunker != nil {
		result.Chunks = f.chunker.SplitAll(runResult.Survivors)
	}

	if f.export.Dir != "" {
		exported, err := export.Export(runResult.Survivors, result.Chunks, f.export)
		if err != nil {
			record.Status = string(pipeline.StatusFailed)
			record.Error = err.Error()
			record.FinishedAt = time.Now().UTC()
			f.recordRun(ctx, record)
			return result, err
		}
		result.Export = exported

		meta := exported.Metadata
		dataset := store.Dataset{
			Name:       meta.Name,
			Hash:       meta.DatasetHash,
			Format:     string(meta.Format),
			Documents:  meta.Documents,
			Chunks:     meta.Chunks,
			Languages:  meta.Languages,
			OutputDir:  f.export.Dir,
			ExportedAt: meta.ExportedAt,
		}
		if err := f.store.UpsertDataset(ctx, dataset); err != nil {
			f.log.Error().Err(err).Str("dataset", dataset.Name).Msg("record dataset")
		}
	}

	record.FinishedAt = time.Now().UTC()
	f.recordRun(ctx, record)
	return result, nil
}

func (f *Forge) recordRun(ctx context.Context, r store.Run) {
	if err := f.store.RecordRun(ctx, r); err != nil {
		f.log.Error().Err(err).Str("run_id", r.ID).Msg("record run")
	}
}

// Runs lists recent runs from the store.
func (f *Forge) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	return f.store.ListRuns(ctx, limit)
}

// Datasets lists recorded datasets.
func (f *Forge) Datasets(ctx context.Context) ([]store.Dataset, error) {
	return f.store.ListDatasets(ctx)
}

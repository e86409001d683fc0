// Command forge runs the corpus preparation pipeline: import, clean,
// dedup, augment, chunk, and export, with progress rendered on the
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/corpusforge/forge/pkg/forge"
	"github.com/corpusforge/forge/pkg/forge/config"
	"github.com/corpusforge/forge/pkg/forge/pipeline"
	"github.com/corpusforge/forge/pkg/forge/store"
	"github.com/corpusforge/forge/pkg/forge/store/memstore"
	"github.com/corpusforge/forge/pkg/forge/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env overrides are optional.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "forge.yaml", "path to the YAML configuration")
		quiet      = flag.Bool("quiet", false, "disable progress bars")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sources := cfg.Inputs
	if args := flag.Args(); len(args) > 0 {
		sources = args
	}
	if len(sources) == 0 {
		return errors.New("no input sources: set inputs in the config or pass paths as arguments")
	}

	comp, err := (&config.Loader{File: cfg}).Load()
	if err != nil {
		return err
	}

	var st store.Store
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store.Path != "" {
		st, err = sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	} else {
		st = memstore.New()
	}

	var checkpoints *pipeline.CheckpointStore
	if cfg.CheckpointPath != "" {
		checkpoints, err = pipeline.OpenCheckpointStore(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer checkpoints.Close()
	}

	var (
		progress pipeline.ProgressFunc
		bars     *stageBars
	)
	if !*quiet {
		bars = newStageBars()
		progress = bars.update
	}

	var preview pipeline.PreviewFunc
	if *verbose {
		preview = func(stage string, sample []string) {
			log.Debug().Str("stage", stage).Strs("sample", sample).Msg("stage output sample")
		}
	}

	opts := forge.Options{
		Pipeline:    comp.Config,
		Plan:        comp.Plan,
		Checkpoints: checkpoints,
		Chunker:     comp.Chunker,
		Export:      comp.Export,
		Store:       st,
		Logger:      log,
		Progress:    progress,
		Preview:     preview,
	}
	if comp.Gate != nil {
		opts.Gate = comp.Gate
	}

	f, err := forge.New(opts)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := f.Run(ctx, sources...)
	if bars != nil {
		bars.wait()
	}
	if err != nil {
		return err
	}

	switch result.Run.Status {
	case pipeline.StatusCancelled:
		log.Warn().Str("run_id", result.Run.RunID).
			Msg("run cancelled; rerun with the same checkpoint path to resume")
	case pipeline.StatusCompleted:
		log.Info().
			Str("run_id", result.Run.RunID).
			Int("imported", result.Imported).
			Int("survivors", len(result.Run.Survivors)).
			Int64("failed", result.Run.FailedCount()).
			Msg("run complete")
		if result.Export != nil {
			log.Info().
				Str("dataset", result.Export.DatasetPath).
				Str("hash", result.Export.Metadata.DatasetHash).
				Msg("dataset exported")
		}
	}
	return nil
}

// stageBars renders one mpb bar per pipeline stage.
type stageBars struct {
	mu       sync.Mutex
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
}

func newStageBars() *stageBars {
	return &stageBars{
		progress: mpb.New(mpb.WithWidth(64)),
		bars:     make(map[string]*mpb.Bar),
	}
}

func (s *stageBars) update(stage string, done, total int64) {
	s.mu.Lock()
	bar, ok := s.bars[stage]
	if !ok {
		bar = s.progress.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(stage+": "),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.CountersNoUnit("%d / %d"), "done"),
			),
		)
		s.bars[stage] = bar
	}
	s.mu.Unlock()
	bar.SetTotal(total, false)
	bar.SetCurrent(done)
}

func (s *stageBars) wait() {
	s.mu.Lock()
	for _, bar := range s.bars {
		bar.Abort(true)
	}
	s.mu.Unlock()
	s.progress.Wait()
}

package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/corpusforge/forge/pkg/forge/dedup"
	"github.com/corpusforge/forge/pkg/forge/document"
)

// runDedup executes the built-in dedup stage. Signing is data-parallel;
// the LSH index is the shared synchronization point and is internally
// sharded. Candidate resolution runs once after the fan-in and is
// deterministic regardless of insert order.
func (o *Orchestrator) runDedup(ctx context.Context, coll *document.Collection, rec *recorder, counter *stageCounter) error {
	docs := coll.Alive()
	total := int64(len(docs))

	idx, err := dedup.NewIndex(o.cfg.LSH, o.cfg.Signature.NumHashes)
	if err != nil {
		return err
	}

	jobs := make(chan *document.Document, len(docs))
	for _, d := range docs {
		jobs <- d
	}
	close(jobs)

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var done atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for d := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}

				if d.Signature == nil {
					d.Signature = o.engine.SignatureFor(d.ContentHash, d.Text)
				}
				if !rec.has(d.Ordinal) {
					d.State = document.StateSigned
					d.Annotate(dedupStageName, "signed")
					counter.processed.Add(1)
					rec.add(d.Ordinal)
				}
				// Every alive document is (re)inserted: the index is
				// rebuilt per run, resumed or not.
				if err := idx.Insert(d.Ordinal, d.Signature); err != nil {
					return err
				}
				if o.progress != nil {
					o.progress(dedupStageName, done.Add(1), total)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// A banding that puts everyone in one bucket is a configuration
	// error, not a license to scan all pairs.
	if err := idx.CheckDegenerate(len(docs)); err != nil {
		return err
	}

	decisions := o.resolver.Resolve(docs, idx.CandidatePairs())
	for _, d := range docs {
		dec := decisions[d.Ordinal]
		if dec.Kept {
			d.State = document.StateKept
			d.Annotate(dedupStageName, "kept")
			counter.kept.Add(1)
		} else {
			d.MarkDropped(dec.DuplicateOf)
			counter.dropped.Add(1)
		}
	}
	return nil
}

package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ashirbekov/txinsights/internal/ingest"
	"github.com/ashirbekov/txinsights/internal/source"
)

// LoadRunner executes load jobs against one sink. Handle satisfies the
// JobHandler signature.
type LoadRunner struct {
	db        ingest.BatchInserter
	store     JobStore
	batchSize int
	log       zerolog.Logger
}

// NewLoadRunner builds a runner committing to db. batchSize is the default
// rows-per-batch for jobs that do not set their own.
func NewLoadRunner(db ingest.BatchInserter, store JobStore, batchSize int, log zerolog.Logger) *LoadRunner {
	if batchSize <= 0 {
		batchSize = ingest.DefaultBatchSize
	}
	return &LoadRunner{db: db, store: store, batchSize: batchSize, log: log}
}

// Handle processes one load job. Failures before any batch committed are
// returned plain and may be retried; once rows are committed a retry would
// load them twice, so later failures come back as PermanentError.
func (r *LoadRunner) Handle(ctx context.Context, job Job) error {
	load, ok := job.(*LoadFileJob)
	if !ok {
		return &PermanentError{Err: fmt.Errorf("unexpected job type: %T", job)}
	}

	log := r.log.With().Str("job_id", load.JobID).Str("source", load.SourceRef).Logger()
	log.Info().Msg("Processing load job")

	src, err := source.Resolve(ctx, load.SourceRef)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	defer src.Close()

	batchSize := load.BatchSize
	if batchSize <= 0 {
		batchSize = r.batchSize
	}

	reader, err := ingest.NewReader(src.Path, ingest.WithBatchSize(batchSize))
	if err != nil {
		return err
	}
	defer reader.Close()

	opts := []ingest.LoaderOption{
		ingest.WithProgress(func(p ingest.Progress) {
			snapshot := p
			load.Progress = &snapshot
			if r.store != nil {
				_ = r.store.UpdateJobProgress(ctx, load.JobID, p)
			}
		}),
	}
	if load.AbortOnError {
		opts = append(opts, ingest.AbortOnFirstError())
	}

	report, err := ingest.NewLoader(r.db, opts...).Load(ctx, reader)
	load.RowsLoaded = report.RowsLoaded
	load.RowsSkipped = report.RowsSkipped
	load.FailedBatches = report.BatchesFailed()

	if err != nil {
		if report.RowsLoaded > 0 {
			return &PermanentError{Err: err}
		}
		return err
	}
	if n := report.BatchesFailed(); n > 0 {
		return &PermanentError{Err: fmt.Errorf("%d batches failed to commit", n)}
	}

	log.Info().
		Int64("rows", report.RowsLoaded).
		Int64("skipped", report.RowsSkipped).
		Int("batches", report.BatchesCommitted).
		Dur("took", report.Duration).
		Msg("Load job completed")
	return nil
}

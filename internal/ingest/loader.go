package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// BatchInserter commits one batch of transactions to the sink as a single
// atomic write.
type BatchInserter interface {
	InsertBatch(ctx context.Context, rows []domain.Transaction) error
}

// Progress is one progress event, emitted after every committed batch.
// RowsLoaded is strictly increasing across the events of one load.
type Progress struct {
	BatchIndex       int
	RowsLoaded       int64
	RowsTotal        int64
	BatchesCommitted int
	BatchesFailed    int
	BytesProcessed   int64
	BytesTotal       int64
	Elapsed          time.Duration
	RowsPerSecond    float64
	ETA              time.Duration
}

// Report summarizes one load invocation.
type Report struct {
	RowsLoaded       int64
	RowsSkipped      int64 // rows dropped because a required column was unparsable
	NullsCoerced     int64 // optional values stored as null because they were unparsable
	BatchesCommitted int
	FailedBatches    []*BatchError
	Duration         time.Duration
}

// BatchesFailed reports how many batches failed to commit.
func (r *Report) BatchesFailed() int {
	return len(r.FailedBatches)
}

// Loader pulls batches from a Reader, coerces them to the sink schema and
// commits them one at a time. At most one batch is resident at any moment,
// so memory stays proportional to the batch size regardless of file size.
//
// A failed batch commit is recorded and skipped unless the loader is
// configured to abort on the first error. The Loader does not close the
// Reader; the caller owns its lifetime.
type Loader struct {
	sink       BatchInserter
	coercer    *RowCoercer
	abortOnErr bool
	onProgress func(Progress)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// AbortOnFirstError makes the first failed batch commit terminate the load.
func AbortOnFirstError() LoaderOption {
	return func(l *Loader) {
		l.abortOnErr = true
	}
}

// WithProgress registers a callback invoked after every committed batch.
// The callback runs on the loading goroutine and should return quickly.
func WithProgress(fn func(Progress)) LoaderOption {
	return func(l *Loader) {
		l.onProgress = fn
	}
}

// NewLoader builds a Loader committing to the given sink.
func NewLoader(sink BatchInserter, opts ...LoaderOption) *Loader {
	l := &Loader{
		sink:    sink,
		coercer: NewRowCoercer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load drains the Reader into the sink. Batch commit failures accumulate in
// the report and do not stop the load unless AbortOnFirstError was set, in
// which case the failing batch is returned as the error. Reader errors and
// context cancellation terminate the load with the partial report.
func (l *Loader) Load(ctx context.Context, r *Reader) (*Report, error) {
	start := time.Now()
	report := &Report{}
	totalRows := r.TotalRows()
	totalBytes := r.TotalBytes()
	var bytesDone int64

	for {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		batch, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("read next batch: %w", err)
		}

		txs, stats := l.coercer.CoerceBatch(batch)
		report.RowsSkipped += stats.RowsSkipped
		report.NullsCoerced += stats.NullsCoerced
		bytesDone += batch.SourceBytes
		if len(txs) == 0 {
			continue
		}

		if err := l.sink.InsertBatch(ctx, txs); err != nil {
			be := &BatchError{Index: batch.Index, Offset: batch.Offset, Rows: len(batch.Rows), Err: err}
			report.FailedBatches = append(report.FailedBatches, be)
			if l.abortOnErr {
				report.Duration = time.Since(start)
				return report, be
			}
			continue
		}

		report.RowsLoaded += int64(len(txs))
		report.BatchesCommitted++
		l.emitProgress(batch.Index, report, start, totalRows, totalBytes, bytesDone)
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (l *Loader) emitProgress(batchIndex int, rep *Report, start time.Time, totalRows, totalBytes, bytesDone int64) {
	if l.onProgress == nil {
		return
	}
	elapsed := time.Since(start)
	p := Progress{
		BatchIndex:       batchIndex,
		RowsLoaded:       rep.RowsLoaded,
		RowsTotal:        totalRows,
		BatchesCommitted: rep.BatchesCommitted,
		BatchesFailed:    len(rep.FailedBatches),
		BytesProcessed:   bytesDone,
		BytesTotal:       totalBytes,
		Elapsed:          elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.RowsPerSecond = float64(rep.RowsLoaded) / secs
	}
	accounted := rep.RowsLoaded + rep.RowsSkipped
	if p.RowsPerSecond > 0 && totalRows > accounted {
		remaining := float64(totalRows-accounted) / p.RowsPerSecond
		p.ETA = time.Duration(remaining * float64(time.Second))
	}
	l.onProgress(p)
}

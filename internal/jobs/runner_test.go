package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/ashirbekov/txinsights/internal/domain"
	"github.com/ashirbekov/txinsights/internal/ingest"
)

type loadRow struct {
	TransactionID        string    `parquet:"transaction_id"`
	TransactionTimestamp time.Time `parquet:"transaction_timestamp"`
	CardID               int64     `parquet:"card_id"`
	MerchantCity         *string   `parquet:"merchant_city,optional"`
}

func writeLoadFile(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "load.parquet")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows := make([]loadRow, n)
	city := "Almaty"
	for i := range rows {
		rows[i] = loadRow{
			TransactionID:        fmt.Sprintf("job-tx-%04d", i),
			TransactionTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			CardID:               int64(4000 + i),
			MerchantCity:         &city,
		}
	}

	w := parquet.NewGenericWriter[loadRow](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

// collectInserter records committed batches and can fail one by index.
type collectInserter struct {
	mu      sync.Mutex
	batches [][]domain.Transaction
	failAt  int // batch call index to fail, -1 for never
	calls   int
}

func (c *collectInserter) InsertBatch(ctx context.Context, rows []domain.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	c.calls++
	if c.failAt >= 0 && idx == c.failAt {
		return errors.New("sink unavailable")
	}
	c.batches = append(c.batches, rows)
	return nil
}

func (c *collectInserter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

type fakeStore struct {
	mu       sync.Mutex
	progress []ingest.Progress
}

func (s *fakeStore) SaveJob(ctx context.Context, job *LoadFileJob) error { return nil }

func (s *fakeStore) GetJob(ctx context.Context, jobID string) (*LoadFileJob, error) {
	return nil, errors.New("not found")
}

func (s *fakeStore) ListJobs(ctx context.Context, filter JobFilter) ([]*LoadFileJob, error) {
	return nil, nil
}

func (s *fakeStore) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error {
	return nil
}

func (s *fakeStore) UpdateJobProgress(ctx context.Context, jobID string, p ingest.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, p)
	return nil
}

func TestLoadRunnerCompletes(t *testing.T) {
	db := &collectInserter{failAt: -1}
	store := &fakeStore{}
	r := NewLoadRunner(db, store, 10, zerolog.Nop())
	job := &LoadFileJob{JobID: "job-1", SourceRef: writeLoadFile(t, 25)}

	if err := r.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle() = %v", err)
	}

	if job.RowsLoaded != 25 || job.RowsSkipped != 0 || job.FailedBatches != 0 {
		t.Errorf("job totals = %d loaded, %d skipped, %d failed", job.RowsLoaded, job.RowsSkipped, job.FailedBatches)
	}
	if got := db.total(); got != 25 {
		t.Errorf("sink received %d rows, want 25", got)
	}
	if len(db.batches) != 3 || len(db.batches[0]) != 10 || len(db.batches[2]) != 5 {
		t.Errorf("batch sizes = %d batches", len(db.batches))
	}

	if len(store.progress) != 3 {
		t.Fatalf("progress events = %d, want one per committed batch", len(store.progress))
	}
	var last int64
	for i, p := range store.progress {
		if p.RowsLoaded <= last {
			t.Errorf("progress[%d].RowsLoaded = %d, not increasing past %d", i, p.RowsLoaded, last)
		}
		last = p.RowsLoaded
	}
	if last != 25 {
		t.Errorf("final progress rows = %d", last)
	}
	if job.Progress == nil || job.Progress.RowsLoaded != 25 {
		t.Errorf("job snapshot = %+v", job.Progress)
	}
}

func TestLoadRunnerJobBatchSizeOverride(t *testing.T) {
	db := &collectInserter{failAt: -1}
	store := &fakeStore{}
	r := NewLoadRunner(db, store, 10, zerolog.Nop())
	job := &LoadFileJob{JobID: "job-1", SourceRef: writeLoadFile(t, 25), BatchSize: 25}

	if err := r.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if len(db.batches) != 1 {
		t.Errorf("batches = %d, want the override to win", len(db.batches))
	}
}

func TestLoadRunnerMissingSourceIsRetryable(t *testing.T) {
	r := NewLoadRunner(&collectInserter{failAt: -1}, &fakeStore{}, 10, zerolog.Nop())
	job := &LoadFileJob{JobID: "job-2", SourceRef: filepath.Join(t.TempDir(), "missing.parquet")}

	err := r.Handle(context.Background(), job)
	if err == nil {
		t.Fatal("Handle() accepted a missing source")
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		t.Errorf("Handle() = permanent %v, nothing committed yet so it should stay retryable", err)
	}
}

func TestLoadRunnerPartialFailureIsPermanent(t *testing.T) {
	db := &collectInserter{failAt: 1}
	r := NewLoadRunner(db, &fakeStore{}, 10, zerolog.Nop())
	job := &LoadFileJob{JobID: "job-3", SourceRef: writeLoadFile(t, 25)}

	err := r.Handle(context.Background(), job)
	var perm *PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("Handle() = %v, committed rows must not be retried", err)
	}
	if job.RowsLoaded != 20 || job.FailedBatches != 1 {
		t.Errorf("job totals = %d loaded, %d failed batches", job.RowsLoaded, job.FailedBatches)
	}
}

func TestLoadRunnerAbortBeforeCommitIsRetryable(t *testing.T) {
	db := &collectInserter{failAt: 0}
	r := NewLoadRunner(db, &fakeStore{}, 10, zerolog.Nop())
	job := &LoadFileJob{JobID: "job-4", SourceRef: writeLoadFile(t, 25), AbortOnError: true}

	err := r.Handle(context.Background(), job)
	if err == nil {
		t.Fatal("Handle() = nil, want the aborting batch error")
	}
	var be *ingest.BatchError
	if !errors.As(err, &be) {
		t.Errorf("Handle() = %v, want batch error", err)
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		t.Errorf("Handle() = permanent %v, want retryable since nothing committed", err)
	}
	if job.RowsLoaded != 0 {
		t.Errorf("RowsLoaded = %d", job.RowsLoaded)
	}
}

type otherJob struct{}

func (otherJob) GetID() string        { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestLoadRunnerRejectsUnknownJobType(t *testing.T) {
	r := NewLoadRunner(&collectInserter{failAt: -1}, &fakeStore{}, 10, zerolog.Nop())

	err := r.Handle(context.Background(), otherJob{})
	var perm *PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("Handle() = %v, want permanent failure", err)
	}
}

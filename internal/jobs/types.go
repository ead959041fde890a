package jobs

import (
	"context"
	"time"

	"github.com/ashirbekov/txinsights/internal/ingest"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeLoadFile represents a parquet load job.
	JobTypeLoadFile JobType = "load_file"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// LoadFileJob represents a job to load one parquet file into the sink.
type LoadFileJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// SourceRef is the file to load: a local path or a gs:// URI.
	SourceRef string `json:"source_ref"`

	// BatchSize overrides the configured rows-per-batch when positive.
	BatchSize int `json:"batch_size,omitempty"`

	// AbortOnError stops the load at the first failed batch commit.
	AbortOnError bool `json:"abort_on_error,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Progress is the latest per-batch progress snapshot.
	Progress *ingest.Progress `json:"progress,omitempty"`

	// RowsLoaded is the number of rows committed by the load.
	RowsLoaded int64 `json:"rows_loaded"`

	// RowsSkipped is the number of rows dropped during coercion.
	RowsSkipped int64 `json:"rows_skipped,omitempty"`

	// FailedBatches is the number of batches that failed to commit.
	FailedBatches int `json:"failed_batches,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *LoadFileJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *LoadFileJob) GetType() JobType {
	return JobTypeLoadFile
}

// GetStatus implements the Job interface.
func (j *LoadFileJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishLoadFile publishes a parquet load job.
	PublishLoadFile(ctx context.Context, job *LoadFileJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed; wrap the error in
// PermanentError to fail without retrying.
type JobHandler func(ctx context.Context, job Job) error

// PermanentError marks a handler failure that must not be retried. The queue
// fails the job immediately when the handler returns one.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *LoadFileJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*LoadFileJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*LoadFileJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error

	// UpdateJobProgress replaces the job's progress snapshot.
	UpdateJobProgress(ctx context.Context, jobID string, p ingest.Progress) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

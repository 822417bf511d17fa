package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPoolClosed is recorded on jobs still queued when the pool stops.
	ErrPoolClosed = errors.New("extraction pool is closed")
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("job not found")
)

// JobStatus represents the observable state of one document.
type JobStatus string

const (
	// JobStatusQueued indicates the document is waiting for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates the extraction call is in flight.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDone indicates processing finished. A done job with a
	// non-empty Error failed.
	JobStatusDone JobStatus = "done"
)

// DocumentJob tracks the extraction of a single document.
type DocumentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// BatchID groups the documents submitted together.
	BatchID string `json:"batch_id"`

	// DocumentName is the display name supplied by the caller.
	DocumentName string `json:"document_name"`

	// MediaType is the declared media type of the payload.
	MediaType string `json:"media_type"`

	// Content is the raw payload. It is never exposed through the store.
	Content []byte `json:"-"`

	Status JobStatus `json:"status"`

	// ExpenseID is set when extraction produced an expense.
	ExpenseID string `json:"expense_id,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Failed reports whether the job finished without producing an expense.
func (j *DocumentJob) Failed() bool {
	return j.Status == JobStatusDone && j.Error != ""
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a document job. It returns ErrPoolClosed once the
	// queue has stopped.
	Publish(ctx context.Context, job *DocumentJob) error

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

// JobHandler processes a job. On success it sets job.ExpenseID; a returned
// error marks the job failed. Jobs are never retried by the queue.
type JobHandler func(ctx context.Context, job *DocumentJob) error

// CompletionHook is called once per job after it reaches JobStatusDone,
// whether it was processed or drained at shutdown.
type CompletionHook func(job DocumentJob)

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *DocumentJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*DocumentJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*DocumentJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// BatchID filters jobs by batch.
	BatchID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

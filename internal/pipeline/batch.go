package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/costpilot/internal/jobs"
)

// Document is one raw document submitted for extraction.
type Document struct {
	Name      string
	MediaType string
	Content   []byte
}

// Failure describes a document that produced no expense.
type Failure struct {
	JobID        string `json:"job_id"`
	DocumentName string `json:"document_name"`
	Error        string `json:"error"`
}

// BatchResult is a snapshot of a batch. Succeeded holds expense IDs in
// completion order, which is unspecified.
type BatchResult struct {
	BatchID     string    `json:"batch_id"`
	Total       int       `json:"total"`
	Outstanding int       `json:"outstanding"`
	Succeeded   []string  `json:"succeeded"`
	Failures    []Failure `json:"failures"`
	CreatedAt   time.Time `json:"created_at"`
}

// Batch tracks the documents submitted together in one Submit call.
type Batch struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	total       int
	outstanding int
	jobIDs      []string
	resolved    map[string]bool
	succeeded   []string
	failures    []Failure
	done        chan struct{}
}

func newBatch(id string, jobIDs []string) *Batch {
	b := &Batch{
		ID:          id,
		CreatedAt:   time.Now(),
		total:       len(jobIDs),
		outstanding: len(jobIDs),
		jobIDs:      jobIDs,
		resolved:    make(map[string]bool, len(jobIDs)),
		succeeded:   []string{},
		failures:    []Failure{},
		done:        make(chan struct{}),
	}
	if b.outstanding == 0 {
		close(b.done)
	}
	return b
}

// Total returns the number of documents in the batch.
func (b *Batch) Total() int {
	return b.total
}

// JobIDs returns the per-document job IDs in submission order.
func (b *Batch) JobIDs() []string {
	return append([]string(nil), b.jobIDs...)
}

// Outstanding returns the number of documents not yet done.
func (b *Batch) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding
}

// Done is closed once every document is done.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Result returns the current snapshot; it is final once Done is closed.
func (b *Batch) Result() BatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BatchResult{
		BatchID:     b.ID,
		Total:       b.total,
		Outstanding: b.outstanding,
		Succeeded:   append([]string{}, b.succeeded...),
		Failures:    append([]Failure{}, b.failures...),
		CreatedAt:   b.CreatedAt,
	}
}

// Wait blocks until the batch is done or ctx ends. Abandoning the wait
// does not stop the remaining documents.
func (b *Batch) Wait(ctx context.Context) (BatchResult, error) {
	select {
	case <-b.done:
		return b.Result(), nil
	case <-ctx.Done():
		return b.Result(), ctx.Err()
	}
}

// resolve records the outcome of a finished job. It reports false if the
// job was already resolved.
func (b *Batch) resolve(job jobs.DocumentJob) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resolved[job.JobID] || b.outstanding == 0 {
		return false
	}
	b.resolved[job.JobID] = true

	if job.Failed() || job.ExpenseID == "" {
		b.failures = append(b.failures, Failure{
			JobID:        job.JobID,
			DocumentName: job.DocumentName,
			Error:        job.Error,
		})
	} else {
		b.succeeded = append(b.succeeded, job.ExpenseID)
	}

	b.outstanding--
	if b.outstanding == 0 {
		close(b.done)
	}
	return true
}

package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/jobs"
)

// DefaultWorkers is used when NewQueue is given a non-positive worker count.
const DefaultWorkers = 5

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// The worker count bounds concurrent handler calls across every batch.
type Queue struct {
	jobChan   chan *jobs.DocumentJob
	closeChan chan struct{}
	workers   int
	store     jobs.JobStore
	onDone    jobs.CompletionHook
	log       zerolog.Logger

	wg        sync.WaitGroup // workers
	publishWG sync.WaitGroup // publishers inside Publish
	mu        sync.RWMutex
	closed    bool
	started   bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Publish blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore, log zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.DocumentJob, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
		store:     store,
		log:       log.With().Str("component", "job_queue").Logger(),
	}
}

// OnComplete registers the hook called after each job is done. It must be
// set before Start.
func (q *Queue) OnComplete(hook jobs.CompletionHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDone = hook
}

// Workers returns the number of concurrent workers.
func (q *Queue) Workers() int {
	return q.workers
}

// Closed reports whether Stop has been called.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Publish implements the Publisher interface.
// It enqueues a document job for asynchronous processing.
func (q *Queue) Publish(ctx context.Context, job *jobs.DocumentJob) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrPoolClosed
	}
	q.publishWG.Add(1)
	q.mu.RUnlock()
	defer q.publishWG.Done()

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	job.Status = jobs.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrPoolClosed
	}
}

// Start implements the Consumer interface.
// It starts the fixed set of workers that call handler for each job.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrPoolClosed
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.log.Debug().Int("workers", q.workers).Msg("job queue started")
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		// Stopping takes priority over queued work.
		select {
		case <-q.closeChan:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job. Failures are recorded, never retried.
func (q *Queue) processJob(ctx context.Context, job *jobs.DocumentJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusProcessing
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := q.runHandler(ctx, job, handler)
	q.finish(ctx, job, err)
}

// runHandler converts a handler panic into a job failure.
func (q *Queue) runHandler(ctx context.Context, job *jobs.DocumentJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) finish(ctx context.Context, job *jobs.DocumentJob, err error) {
	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.Status = jobs.JobStatusDone
	job.Content = nil

	if err != nil {
		job.Error = err.Error()
		job.ExpenseID = ""
		q.log.Warn().
			Err(err).
			Str("job_id", job.JobID).
			Str("batch_id", job.BatchID).
			Str("document", job.DocumentName).
			Msg("document job failed")
	}

	q.save(ctx, job)

	q.mu.RLock()
	hook := q.onDone
	q.mu.RUnlock()
	if hook != nil {
		hook(*job)
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.DocumentJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
}

// drain fails every job left in the channel with ErrPoolClosed.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobChan:
			if job == nil {
				continue
			}
			q.finish(context.Background(), job, jobs.ErrPoolClosed)
		default:
			return
		}
	}
}

// Stop implements the Consumer interface.
// It stops the queue, waits for in-flight jobs, then fails whatever is
// still queued.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.publishWG.Wait()
		q.wg.Wait()
		q.drain()
		close(done)
	}()

	select {
	case <-done:
		q.log.Debug().Msg("job queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)

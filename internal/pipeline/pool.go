// Package pipeline implements the extraction worker pool: documents are
// submitted in batches, extracted concurrently with per-document failure
// isolation, and committed to the record store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/jobs"
	"github.com/dvloznov/costpilot/internal/jobs/inmemory"
	"github.com/dvloznov/costpilot/internal/metrics"
	"github.com/dvloznov/costpilot/internal/store"
)

// ErrEmptyDocument is recorded for documents submitted without content.
var ErrEmptyDocument = errors.New("document has no content")

const (
	defaultQueueSize = 100
	defaultTimeout   = 2 * time.Minute
)

// Options configures a Pool.
type Options struct {
	Workers   int           // concurrent extraction calls, system-wide
	QueueSize int           // documents buffered before enqueueing blocks
	Timeout   time.Duration // per extraction call
	JobStore  jobs.JobStore // optional; defaults to an in-memory store
}

// Pool runs extraction jobs on a fixed set of workers.
type Pool struct {
	store     *store.Store
	extractor ai.Extractor
	jobStore  jobs.JobStore
	queue     *inmemory.Queue
	timeout   time.Duration
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	batches     map[string]*Batch
	closed      bool
	enqueueWG   sync.WaitGroup
	outstanding atomic.Int64
}

// NewPool creates a pool that writes extracted expenses into st.
func NewPool(st *store.Store, extractor ai.Extractor, opts Options, log zerolog.Logger) *Pool {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.JobStore == nil {
		opts.JobStore = inmemory.NewStore()
	}

	log = log.With().Str("component", "extraction_pool").Logger()
	p := &Pool{
		store:     st,
		extractor: extractor,
		jobStore:  opts.JobStore,
		queue:     inmemory.NewQueue(opts.QueueSize, opts.Workers, opts.JobStore, log),
		timeout:   opts.Timeout,
		log:       log,
		batches:   make(map[string]*Batch),
	}
	p.queue.OnComplete(p.complete)
	return p
}

// Start launches the workers. Work continues until Close, independent of
// any caller's context.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := p.queue.Start(runCtx, p.handle); err != nil {
		cancel()
		return fmt.Errorf("start extraction queue: %w", err)
	}
	p.ctx, p.cancel = runCtx, cancel
	p.log.Info().Int("workers", p.queue.Workers()).Msg("extraction pool started")
	return nil
}

// JobStore exposes per-document status for observability.
func (p *Pool) JobStore() jobs.JobStore {
	return p.jobStore
}

// Submit registers a batch and returns immediately. Documents are enqueued
// in the background; the returned Batch reports their progress.
func (p *Pool) Submit(ctx context.Context, docs []Document) (*Batch, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, jobs.ErrPoolClosed
	}
	if p.ctx == nil {
		p.mu.Unlock()
		return nil, errors.New("extraction pool not started")
	}

	batchID := uuid.New().String()
	now := time.Now()
	pending := make([]*jobs.DocumentJob, len(docs))
	jobIDs := make([]string, len(docs))
	for i, d := range docs {
		pending[i] = &jobs.DocumentJob{
			JobID:        uuid.New().String(),
			BatchID:      batchID,
			DocumentName: d.Name,
			MediaType:    d.MediaType,
			Content:      d.Content,
			Status:       jobs.JobStatusQueued,
			CreatedAt:    now,
		}
		jobIDs[i] = pending[i].JobID
	}

	batch := newBatch(batchID, jobIDs)
	p.batches[batchID] = batch
	p.addOutstanding(int64(len(docs)))
	p.enqueueWG.Add(1)
	p.mu.Unlock()

	logger := p.log.With().Str("batch_id", batchID).Logger()
	logger.Info().Int("documents", len(docs)).Msg("batch submitted")

	go p.enqueue(pending, logger)
	return batch, nil
}

// enqueue publishes each job; a job that cannot be queued is failed in place.
func (p *Pool) enqueue(pending []*jobs.DocumentJob, log zerolog.Logger) {
	defer p.enqueueWG.Done()

	for _, job := range pending {
		if len(job.Content) == 0 {
			p.failUnqueued(job, ErrEmptyDocument)
			continue
		}
		if err := p.queue.Publish(p.ctx, job); err != nil {
			if !errors.Is(err, jobs.ErrPoolClosed) && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to enqueue document")
			}
			if errors.Is(err, context.Canceled) {
				err = jobs.ErrPoolClosed
			}
			p.failUnqueued(job, err)
		}
	}
}

func (p *Pool) failUnqueued(job *jobs.DocumentJob, cause error) {
	now := time.Now()
	job.Status = jobs.JobStatusDone
	job.Error = cause.Error()
	job.CompletedAt = &now
	job.Content = nil
	if err := p.jobStore.SaveJob(context.Background(), job); err != nil {
		p.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
	p.complete(*job)
}

// handle extracts one document and commits the expense.
func (p *Pool) handle(ctx context.Context, job *jobs.DocumentJob) error {
	logger := p.log.With().
		Str("batch_id", job.BatchID).
		Str("job_id", job.JobID).
		Str("document", job.DocumentName).
		Logger()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	extracted, err := p.extractor.ExtractExpense(callCtx, job.Content, job.MediaType)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	expense := toExpense(extracted, domain.Today(), logger)
	expense.ID = uuid.New().String()

	added, err := p.store.AddExpense(expense)
	if err != nil {
		return fmt.Errorf("commit expense: %w", err)
	}
	job.ExpenseID = added.ID

	logger.Debug().
		Str("expense_id", added.ID).
		Str("vendor", added.VendorName).
		Str("amount", added.Amount.String()).
		Msg("document extracted")
	return nil
}

// complete resolves a finished job against its batch.
func (p *Pool) complete(job jobs.DocumentJob) {
	p.mu.RLock()
	batch := p.batches[job.BatchID]
	p.mu.RUnlock()

	if batch == nil || !batch.resolve(job) {
		return
	}

	p.addOutstanding(-1)
	metrics.DocumentsTotal.WithLabelValues(metrics.ResultLabel(errorOf(job))).Inc()

	select {
	case <-batch.Done():
		r := batch.Result()
		p.log.Info().
			Str("batch_id", batch.ID).
			Int("succeeded", len(r.Succeeded)).
			Int("failed", len(r.Failures)).
			Msg("batch finished")
	default:
	}
}

func errorOf(job jobs.DocumentJob) error {
	if job.Failed() {
		return errors.New(job.Error)
	}
	return nil
}

func (p *Pool) addOutstanding(n int64) {
	v := p.outstanding.Add(n)
	metrics.OutstandingDocuments.Set(float64(v))
}

// Outstanding returns the number of documents not yet done across all batches.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}

// Batch looks up a batch by ID.
func (p *Pool) Batch(id string) (*Batch, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[id]
	return b, ok
}

// Forget drops finished batches; batches still in flight are kept.
func (p *Pool) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, b := range p.batches {
		if b.Outstanding() == 0 {
			delete(p.batches, id)
		}
	}
}

// Close stops accepting batches, waits for in-flight extractions and fails
// every document still queued with jobs.ErrPoolClosed.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.queue.Stop(ctx)
	p.enqueueWG.Wait()

	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	p.log.Info().Int("outstanding", p.Outstanding()).Msg("extraction pool stopped")
	return err
}

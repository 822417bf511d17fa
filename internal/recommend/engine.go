// Package recommend holds the volatile working set of savings
// recommendations and keeps it in step with the expense set.
package recommend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/metrics"
	"github.com/dvloznov/costpilot/internal/store"
)

const refreshKey = "refresh"

// maxCatchUp bounds how many back-to-back refreshes one change signal may
// trigger while the expense set keeps moving.
const maxCatchUp = 3

// Status describes the last refresh.
type Status struct {
	Count       int       `json:"count"`
	Refreshing  bool      `json:"refreshing"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Version     uint64    `json:"version"` // expense-set version of the working set
}

// Options configures an Engine.
type Options struct {
	Timeout time.Duration // per analysis call; zero means no extra deadline
}

// Engine owns the working set. The set is an immutable slice replaced as a
// whole, so readers never observe a partial update.
type Engine struct {
	store    *store.Store
	analyzer ai.Analyzer
	opts     Options
	log      zerolog.Logger
	group    singleflight.Group

	mu      sync.RWMutex
	set     []domain.Recommendation
	applied uint64
	status  Status

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine with an empty working set.
func New(st *store.Store, analyzer ai.Analyzer, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		analyzer: analyzer,
		opts:     opts,
		log:      log.With().Str("component", "recommendations").Logger(),
	}
}

// Start refreshes once and then again after every expense change until
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, unsubscribe := e.store.SubscribeExpenses()
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer unsubscribe()

		e.catchUp(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				e.catchUp(ctx)
			}
		}
	}()
}

// Stop ends the auto-refresh loop and waits for it to exit.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// catchUp refreshes until the working set reflects the current expense
// version, a refresh fails, or maxCatchUp is reached.
func (e *Engine) catchUp(ctx context.Context) {
	for i := 0; i < maxCatchUp; i++ {
		if ctx.Err() != nil {
			return
		}
		e.mu.RLock()
		current := e.applied == e.store.ExpenseVersion() && !e.status.LastRefresh.IsZero()
		e.mu.RUnlock()
		if current {
			return
		}
		if _, err := e.Refresh(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				e.log.Warn().Err(err).Msg("automatic refresh failed, keeping previous recommendations")
			}
			return
		}
	}
}

// Refresh recomputes the working set from the current expense set.
// Concurrent calls share one analysis call. On failure the previous set is
// kept and an *ai.AnalysisError is returned.
func (e *Engine) Refresh(ctx context.Context) ([]domain.Recommendation, error) {
	ch := e.group.DoChan(refreshKey, func() (interface{}, error) {
		return e.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneSet(res.Val.([]domain.Recommendation)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) refresh(ctx context.Context) ([]domain.Recommendation, error) {
	e.setRefreshing(true)
	defer e.setRefreshing(false)

	expenses, version := e.store.SnapshotExpenses()
	if len(expenses) == 0 {
		return e.apply(version, nil), nil
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	findings, err := e.analyzer.AnalyzeSpending(ctx, expenses)
	metrics.AnalysisCallsTotal.WithLabelValues("analyze_spending", metrics.ResultLabel(err)).Inc()
	if err != nil {
		var anErr *ai.AnalysisError
		if !errors.As(err, &anErr) {
			err = &ai.AnalysisError{Op: "analyze_spending", Err: err}
		}
		e.mu.Lock()
		e.status.LastError = err.Error()
		e.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	recs := make([]domain.Recommendation, len(findings))
	for i, f := range findings {
		recs[i] = domain.Recommendation{
			ID:              uuid.New().String(),
			VendorName:      f.VendorName,
			Reason:          f.Reason,
			EstimatedSaving: f.EstimatedSaving,
			Action:          f.Action,
			ReceivedAt:      now,
		}
	}
	return e.apply(version, recs), nil
}

// apply installs recs unless a newer expense version was already applied,
// and returns the working set in effect afterwards.
func (e *Engine) apply(version uint64, recs []domain.Recommendation) []domain.Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()

	if version < e.applied {
		e.log.Debug().Uint64("version", version).Uint64("applied", e.applied).Msg("discarding stale recommendations")
		return e.set
	}

	if recs == nil {
		recs = []domain.Recommendation{}
	}
	e.set = recs
	e.applied = version
	e.status.LastRefresh = time.Now()
	e.status.LastError = ""
	metrics.Recommendations.Set(float64(len(recs)))

	e.log.Info().Int("count", len(recs)).Uint64("version", version).Msg("recommendations refreshed")
	return recs
}

func (e *Engine) setRefreshing(v bool) {
	e.mu.Lock()
	e.status.Refreshing = v
	e.mu.Unlock()
}

// List returns the current working set.
func (e *Engine) List() []domain.Recommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneSet(e.set)
}

// Status reports the state of the last refresh.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Count = len(e.set)
	s.Version = e.applied
	return s
}

// Take removes the recommendation with id from the working set and returns
// it. It reports false when id is not in the set.
func (e *Engine) Take(id string) (domain.Recommendation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.set {
		if r.ID != id {
			continue
		}
		next := make([]domain.Recommendation, 0, len(e.set)-1)
		next = append(next, e.set[:i]...)
		next = append(next, e.set[i+1:]...)
		e.set = next
		metrics.Recommendations.Set(float64(len(next)))
		return r, true
	}
	return domain.Recommendation{}, false
}

// Dismiss drops a recommendation without accepting it.
func (e *Engine) Dismiss(id string) bool {
	_, ok := e.Take(id)
	return ok
}

// Clear empties the working set and forgets the last refresh. Refreshes
// already in flight against an older expense set are discarded.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = []domain.Recommendation{}
	e.applied = e.store.ExpenseVersion()
	e.status = Status{}
	metrics.Recommendations.Set(0)
}

func cloneSet(set []domain.Recommendation) []domain.Recommendation {
	out := make([]domain.Recommendation, len(set))
	copy(out, set)
	return out
}

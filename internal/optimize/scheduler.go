// Package optimize turns accepted recommendations into optimization tasks
// and drives each task from in-progress to a terminal state.
package optimize

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/metrics"
	"github.com/dvloznov/costpilot/internal/store"
)

// ErrSchedulerClosed is returned by Accept after Close.
var ErrSchedulerClosed = errors.New("task scheduler is closed")

// Recommendations is the part of the recommendation engine the scheduler
// needs. Take must remove atomically so one recommendation yields at most
// one task.
type Recommendations interface {
	Take(id string) (domain.Recommendation, bool)
}

// Scheduler creates tasks and owns their completion triggers.
type Scheduler struct {
	store  *store.Store
	recs   Recommendations
	source CompletionSource
	log    zerolog.Logger

	mu       sync.Mutex
	triggers map[string]func() // task ID -> stop; nil until Schedule returns
	closed   bool
}

// NewScheduler creates a scheduler. A nil source defaults to a TimerSource
// with DefaultCompletionDelay.
func NewScheduler(st *store.Store, recs Recommendations, source CompletionSource, log zerolog.Logger) *Scheduler {
	if source == nil {
		source = TimerSource{Delay: DefaultCompletionDelay}
	}
	return &Scheduler{
		store:    st,
		recs:     recs,
		source:   source,
		log:      log.With().Str("component", "task_scheduler").Logger(),
		triggers: make(map[string]func()),
	}
}

// Accept converts the recommendation into an in-progress task and
// schedules its completion. A recommendation no longer in the working set
// is a silent no-op: it returns ok=false and a nil error.
func (s *Scheduler) Accept(ctx context.Context, recommendationID string) (domain.OptimizationTask, bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.OptimizationTask{}, false, ErrSchedulerClosed
	}
	if err := ctx.Err(); err != nil {
		return domain.OptimizationTask{}, false, err
	}

	rec, ok := s.recs.Take(recommendationID)
	if !ok {
		s.log.Debug().Str("recommendation_id", recommendationID).Msg("recommendation no longer available, ignoring accept")
		return domain.OptimizationTask{}, false, nil
	}

	task := domain.OptimizationTask{
		ID:               uuid.New().String(),
		RecommendationID: rec.ID,
		VendorName:       rec.VendorName,
		Reason:           rec.Reason,
		EstimatedSaving:  rec.EstimatedSaving,
		Action:           rec.Action,
		Status:           domain.TaskStatusInProgress,
		CreatedAt:        time.Now(),
	}

	// The trigger slot is reserved under the same lock as the closed check,
	// so a Close racing with Accept either rejects it here or releases the
	// slot like any other pending trigger.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug().Str("recommendation_id", recommendationID).Msg("scheduler closed during accept")
		return domain.OptimizationTask{}, false, ErrSchedulerClosed
	}
	s.triggers[task.ID] = nil
	metrics.PendingTriggers.Set(float64(len(s.triggers)))
	s.mu.Unlock()

	if err := s.store.AddTask(task); err != nil {
		s.release(task.ID)
		return domain.OptimizationTask{}, false, err
	}

	marked := s.store.SetRecurringStatusByVendor(task.VendorName,
		domain.RecurringStatusOptimizing, domain.RecurringStatusActive)
	metrics.TasksTotal.WithLabelValues(string(domain.TaskStatusInProgress)).Inc()

	s.log.Info().
		Str("task_id", task.ID).
		Str("vendor", task.VendorName).
		Str("estimated_saving", task.EstimatedSaving.String()).
		Int("recurring_marked", marked).
		Msg("task accepted")

	s.arm(task)
	return task, true, nil
}

func (s *Scheduler) release(taskID string) {
	s.mu.Lock()
	delete(s.triggers, taskID)
	metrics.PendingTriggers.Set(float64(len(s.triggers)))
	s.mu.Unlock()
}

// arm schedules the completion for a task whose trigger slot is reserved.
func (s *Scheduler) arm(task domain.OptimizationTask) {
	var once sync.Once
	stop := s.source.Schedule(task, func(err error) {
		once.Do(func() { s.finish(task, err) })
	})

	s.mu.Lock()
	_, pending := s.triggers[task.ID]
	if pending {
		s.triggers[task.ID] = stop
	}
	s.mu.Unlock()

	// Fired already or released by StopAll; stopping is harmless either way.
	if !pending && stop != nil {
		stop()
	}
}

// finish moves the task to its terminal state. Triggers that fire after
// their task was released are ignored.
func (s *Scheduler) finish(task domain.OptimizationTask, cause error) {
	s.mu.Lock()
	if _, pending := s.triggers[task.ID]; !pending {
		s.mu.Unlock()
		return
	}
	delete(s.triggers, task.ID)
	metrics.PendingTriggers.Set(float64(len(s.triggers)))
	s.mu.Unlock()

	logger := s.log.With().Str("task_id", task.ID).Str("vendor", task.VendorName).Logger()

	to, errMsg, recurring := domain.TaskStatusCompleted, "", domain.RecurringStatusCompleted
	if cause != nil {
		to, errMsg, recurring = domain.TaskStatusFailed, cause.Error(), domain.RecurringStatusActive
	}

	if _, err := s.store.TransitionTask(task.ID, to, errMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug().Msg("task removed before completion")
		} else {
			logger.Error().Err(err).Msg("task transition failed")
		}
		return
	}
	s.store.SetRecurringStatusByVendor(task.VendorName, recurring, domain.RecurringStatusOptimizing)
	metrics.TasksTotal.WithLabelValues(string(to)).Inc()

	if cause != nil {
		logger.Warn().Err(cause).Msg("task failed")
		return
	}
	logger.Info().Msg("task completed")
}

// Pending returns the number of completion triggers not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

// StopAll cancels every pending trigger. Affected tasks stay in progress.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	triggers := s.triggers
	s.triggers = make(map[string]func())
	metrics.PendingTriggers.Set(0)
	s.mu.Unlock()

	for _, stop := range triggers {
		if stop != nil {
			stop()
		}
	}
	return len(triggers)
}

// Close stops all triggers and rejects further accepts.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if n := s.StopAll(); n > 0 {
		s.log.Info().Int("stopped", n).Msg("pending task triggers stopped")
	}
}

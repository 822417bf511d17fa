package optimize

import (
	"time"

	"github.com/dvloznov/costpilot/internal/domain"
)

// DefaultCompletionDelay is how long a TimerSource waits before reporting
// a task finished.
const DefaultCompletionDelay = 4500 * time.Millisecond

// CompletionSource decides when an in-progress task is finished. Schedule
// arranges for done to be called once, with nil on success or an error if
// remediation failed. The returned stop func cancels a pending call.
type CompletionSource interface {
	Schedule(task domain.OptimizationTask, done func(error)) (stop func())
}

// TimerSource completes every task successfully after a fixed delay.
type TimerSource struct {
	Delay time.Duration
}

// Schedule implements CompletionSource.
func (s TimerSource) Schedule(task domain.OptimizationTask, done func(error)) func() {
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultCompletionDelay
	}
	t := time.AfterFunc(delay, func() { done(nil) })
	return func() { t.Stop() }
}

// SourceFunc adapts a function to CompletionSource.
type SourceFunc func(task domain.OptimizationTask, done func(error)) func()

// Schedule implements CompletionSource.
func (f SourceFunc) Schedule(task domain.OptimizationTask, done func(error)) func() {
	return f(task, done)
}

package optimize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/store"
)

// fakeRecs is a minimal working set keyed by ID.
type fakeRecs struct {
	mu   sync.Mutex
	recs []domain.Recommendation
}

func (f *fakeRecs) Take(id string) (domain.Recommendation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.recs {
		if r.ID == id {
			f.recs = append(f.recs[:i:i], f.recs[i+1:]...)
			return r, true
		}
	}
	return domain.Recommendation{}, false
}

func (f *fakeRecs) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

// manualSource lets a test fire completions explicitly.
type manualSource struct {
	mu      sync.Mutex
	pending map[string]func(error)
	stopped map[string]bool
}

func newManualSource() *manualSource {
	return &manualSource{pending: map[string]func(error){}, stopped: map[string]bool{}}
}

func (m *manualSource) Schedule(task domain.OptimizationTask, done func(error)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[task.ID] = done
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stopped[task.ID] = true
	}
}

func (m *manualSource) fire(taskID string, err error) {
	m.mu.Lock()
	done := m.pending[taskID]
	m.mu.Unlock()
	done(err)
}

func acmeRecs() *fakeRecs {
	return &fakeRecs{recs: []domain.Recommendation{
		{ID: "rec-acme", VendorName: "Acme", Reason: "duplicate seats", EstimatedSaving: decimal.NewFromInt(40), Action: "Switch to Annual"},
	}}
}

func TestAccept_AcmeScenario(t *testing.T) {
	st := store.New()
	recs := acmeRecs()
	s := NewScheduler(st, recs, TimerSource{Delay: 30 * time.Millisecond}, zerolog.Nop())
	defer s.Close()

	task, ok, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, domain.TaskStatusInProgress, task.Status)
	assert.True(t, decimal.NewFromInt(40).Equal(task.EstimatedSaving))
	assert.Equal(t, "rec-acme", task.RecommendationID)
	assert.Equal(t, 0, recs.len())
	assert.Equal(t, 1, s.Pending())

	stored, err := st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, stored.Status)

	require.Eventually(t, func() bool {
		got, err := st.GetTask(task.ID)
		return err == nil && got.Status == domain.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	done, _ := st.GetTask(task.ID)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, st.ListTasks(), 1)
}

func TestAccept_UnknownOrRepeatedIsNoop(t *testing.T) {
	st := store.New()
	s := NewScheduler(st, acmeRecs(), newManualSource(), zerolog.Nop())
	defer s.Close()

	_, ok, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Accept(context.Background(), "rec-acme")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Accept(context.Background(), "never-existed")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, st.ListTasks(), 1)
}

func TestAccept_ConcurrentAcceptsCreateOneTask(t *testing.T) {
	st := store.New()
	s := NewScheduler(st, acmeRecs(), newManualSource(), zerolog.Nop())
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Accept(context.Background(), "rec-acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, st.ListTasks(), 1)
	assert.Equal(t, 1, s.Pending())
}

func TestAccept_OnlyTriggeredTaskCompletes(t *testing.T) {
	st := store.New()
	recs := &fakeRecs{recs: []domain.Recommendation{
		{ID: "r1", VendorName: "Acme"},
		{ID: "r2", VendorName: "Globex"},
	}}
	src := newManualSource()
	s := NewScheduler(st, recs, src, zerolog.Nop())
	defer s.Close()

	t1, _, err := s.Accept(context.Background(), "r1")
	require.NoError(t, err)
	t2, _, err := s.Accept(context.Background(), "r2")
	require.NoError(t, err)

	src.fire(t1.ID, nil)
	// A second signal for the same task is ignored.
	src.fire(t1.ID, errors.New("late"))

	got1, _ := st.GetTask(t1.ID)
	got2, _ := st.GetTask(t2.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got1.Status)
	assert.Empty(t, got1.Error)
	assert.Equal(t, domain.TaskStatusInProgress, got2.Status)
	assert.Equal(t, 1, s.Pending())
}

func TestAccept_FailedCompletion(t *testing.T) {
	st := store.New()
	require.NoError(t, st.AppendRecurring(domain.RecurringCost{ID: "sub", VendorName: "acme", Status: domain.RecurringStatusActive}))
	src := newManualSource()
	s := NewScheduler(st, acmeRecs(), src, zerolog.Nop())
	defer s.Close()

	task, _, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)
	assert.Equal(t, domain.RecurringStatusOptimizing, st.ListRecurring()[0].Status)

	src.fire(task.ID, errors.New("vendor refused"))

	got, _ := st.GetTask(task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "vendor refused", got.Error)
	assert.Equal(t, domain.RecurringStatusActive, st.ListRecurring()[0].Status)
}

func TestAccept_RecurringLifecycle(t *testing.T) {
	st := store.New()
	require.NoError(t, st.AppendRecurring(
		domain.RecurringCost{ID: "a", VendorName: "Acme", Status: domain.RecurringStatusActive},
		domain.RecurringCost{ID: "b", VendorName: "Other", Status: domain.RecurringStatusActive},
	))
	src := newManualSource()
	s := NewScheduler(st, acmeRecs(), src, zerolog.Nop())
	defer s.Close()

	task, _, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)
	src.fire(task.ID, nil)

	list := st.ListRecurring()
	assert.Equal(t, domain.RecurringStatusCompleted, list[0].Status)
	assert.Equal(t, domain.RecurringStatusActive, list[1].Status)
}

func TestSynchronousSource(t *testing.T) {
	st := store.New()
	immediate := SourceFunc(func(task domain.OptimizationTask, done func(error)) func() {
		done(nil)
		return func() {}
	})
	s := NewScheduler(st, acmeRecs(), immediate, zerolog.Nop())
	defer s.Close()

	task, ok, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := st.GetTask(task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 0, s.Pending())
}

func TestClose_StopsTriggers(t *testing.T) {
	st := store.New()
	src := newManualSource()
	s := NewScheduler(st, acmeRecs(), src, zerolog.Nop())

	task, _, err := s.Accept(context.Background(), "rec-acme")
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, 0, s.Pending())
	assert.True(t, src.stopped[task.ID])

	// A trigger firing after Close is ignored.
	src.fire(task.ID, nil)
	got, _ := st.GetTask(task.ID)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)

	_, _, err = s.Accept(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

// closingRecs closes the scheduler while a recommendation is being taken.
type closingRecs struct {
	*fakeRecs
	s *Scheduler
}

func (c *closingRecs) Take(id string) (domain.Recommendation, bool) {
	r, ok := c.fakeRecs.Take(id)
	c.s.Close()
	return r, ok
}

func TestAccept_CloseDuringAcceptCreatesNoTask(t *testing.T) {
	st := store.New()
	recs := &closingRecs{fakeRecs: acmeRecs()}
	immediate := SourceFunc(func(task domain.OptimizationTask, done func(error)) func() {
		done(nil)
		return func() {}
	})
	s := NewScheduler(st, recs, immediate, zerolog.Nop())
	recs.s = s

	task, ok, err := s.Accept(context.Background(), "rec-acme")
	require.ErrorIs(t, err, ErrSchedulerClosed)
	assert.False(t, ok)
	assert.Empty(t, task.ID)
	assert.Empty(t, st.ListTasks())
	assert.Equal(t, 0, s.Pending())
}

func TestTimerSource_DefaultDelay(t *testing.T) {
	fired := make(chan struct{})
	stop := TimerSource{}.Schedule(domain.OptimizationTask{}, func(error) { close(fired) })
	stop()

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(20 * time.Millisecond):
	}
}

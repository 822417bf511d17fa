package recommend

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

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/store"
)

type mockAnalyzer struct {
	mu       sync.Mutex
	findings []ai.SavingsFinding
	err      error
	calls    int
	gate     chan struct{}
}

func (m *mockAnalyzer) AnalyzeSpending(ctx context.Context, expenses []domain.Expense) ([]ai.SavingsFinding, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	findings, err := m.findings, m.err
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return findings, err
}

func (m *mockAnalyzer) DetectSubscriptions(ctx context.Context, expenses []domain.Expense) ([]ai.SubscriptionCandidate, error) {
	return nil, errors.New("not used")
}

func (m *mockAnalyzer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockAnalyzer) set(findings []ai.SavingsFinding, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings, m.err = findings, err
}

func acme() []ai.SavingsFinding {
	return []ai.SavingsFinding{
		{VendorName: "Acme", Reason: "duplicate seats", EstimatedSaving: decimal.NewFromInt(40), Action: "Switch to Annual"},
		{VendorName: "Lease Co", Reason: "above market", EstimatedSaving: decimal.NewFromInt(100), Action: "Negotiate Lease"},
	}
}

func addExpense(t *testing.T, st *store.Store, id string) {
	t.Helper()
	_, err := st.AddExpense(domain.Expense{ID: id, VendorName: "Acme", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
}

func TestRefresh_EmptyExpenseSetSkipsCall(t *testing.T) {
	an := &mockAnalyzer{findings: acme()}
	e := New(store.New(), an, Options{}, zerolog.Nop())

	got, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, an.callCount())
	assert.False(t, e.Status().LastRefresh.IsZero())
}

func TestRefresh_AssignsSyntheticIDs(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	an := &mockAnalyzer{findings: acme()}
	e := New(st, an, Options{}, zerolog.Nop())

	got, err := e.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, "Acme", got[0].VendorName)
	assert.Equal(t, got, e.List())

	// A second refresh replaces the set wholesale with fresh IDs.
	again, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, got[0].ID, again[0].ID)
}

func TestRefresh_FailureKeepsPreviousSet(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	an := &mockAnalyzer{findings: acme()}
	e := New(st, an, Options{}, zerolog.Nop())

	before, err := e.Refresh(context.Background())
	require.NoError(t, err)

	an.set(nil, errors.New("quota exceeded"))
	_, err = e.Refresh(context.Background())
	var anErr *ai.AnalysisError
	require.ErrorAs(t, err, &anErr)

	assert.Equal(t, before, e.List())
	status := e.Status()
	assert.Contains(t, status.LastError, "quota exceeded")
	assert.Equal(t, 2, status.Count)
}

func TestRefresh_ConcurrentCallsCoalesce(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	an := &mockAnalyzer{findings: acme(), gate: make(chan struct{})}
	e := New(st, an, Options{}, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([][]domain.Recommendation, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return an.callCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, e.Status().Refreshing)
	time.Sleep(20 * time.Millisecond)
	close(an.gate)
	wg.Wait()

	assert.Equal(t, 1, an.callCount())
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestApply_DiscardsStaleResults(t *testing.T) {
	e := New(store.New(), &mockAnalyzer{}, Options{}, zerolog.Nop())

	newer := []domain.Recommendation{{ID: "new"}}
	older := []domain.Recommendation{{ID: "old"}}

	e.apply(5, newer)
	got := e.apply(3, older)

	assert.Equal(t, newer, got)
	assert.Equal(t, newer, e.List())
	assert.Equal(t, uint64(5), e.Status().Version)
}

func TestTakeAndDismiss(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	e := New(st, &mockAnalyzer{findings: acme()}, Options{}, zerolog.Nop())

	recs, err := e.Refresh(context.Background())
	require.NoError(t, err)

	taken, ok := e.Take(recs[0].ID)
	require.True(t, ok)
	assert.Equal(t, recs[0], taken)

	_, ok = e.Take(recs[0].ID)
	assert.False(t, ok)

	assert.True(t, e.Dismiss(recs[1].ID))
	assert.False(t, e.Dismiss(recs[1].ID))
	assert.Empty(t, e.List())
}

func TestClear(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	e := New(st, &mockAnalyzer{findings: acme()}, Options{}, zerolog.Nop())
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	e.Clear()
	assert.Empty(t, e.List())
	assert.True(t, e.Status().LastRefresh.IsZero())
}

func TestClear_DiscardsInFlightRefresh(t *testing.T) {
	st := store.New()
	addExpense(t, st, "e1")
	an := &mockAnalyzer{findings: acme(), gate: make(chan struct{})}
	e := New(st, an, Options{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := e.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return an.callCount() == 1 }, time.Second, 5*time.Millisecond)

	st.Reset()
	e.Clear()
	close(an.gate)
	require.NoError(t, <-done)

	assert.Empty(t, e.List())
}

func TestStart_RefreshesOnExpenseChanges(t *testing.T) {
	st := store.New()
	an := &mockAnalyzer{findings: acme()}
	e := New(st, an, Options{}, zerolog.Nop())

	e.Start(context.Background())
	defer e.Stop()

	// Initial refresh on an empty store makes no call.
	require.Eventually(t, func() bool { return !e.Status().LastRefresh.IsZero() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, an.callCount())

	addExpense(t, st, "e1")
	require.Eventually(t, func() bool { return len(e.List()) == 2 }, time.Second, time.Millisecond)

	st.RemoveExpenses("e1")
	require.Eventually(t, func() bool { return len(e.List()) == 0 }, time.Second, time.Millisecond)

	e.Stop()
	e.Stop()
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/config"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/jobs"
	"github.com/dvloznov/costpilot/internal/optimize"
	"github.com/dvloznov/costpilot/internal/reconcile"
)

type fakeService struct{}

func (fakeService) ExtractExpense(ctx context.Context, content []byte, mediaType string) (*ai.ExtractedExpense, error) {
	vendor := string(content)
	amount := decimal.NewFromInt(99)
	date := "2024-03-01"
	return &ai.ExtractedExpense{VendorName: &vendor, Amount: &amount, Date: &date}, nil
}

func (fakeService) AnalyzeSpending(ctx context.Context, expenses []domain.Expense) ([]ai.SavingsFinding, error) {
	return []ai.SavingsFinding{
		{VendorName: "Acme", Reason: "unused seats", EstimatedSaving: decimal.NewFromInt(40), Action: "Downgrade"},
	}, nil
}

func (fakeService) DetectSubscriptions(ctx context.Context, expenses []domain.Expense) ([]ai.SubscriptionCandidate, error) {
	vendor := "Acme"
	cost := decimal.NewFromInt(99)
	return []ai.SubscriptionCandidate{{VendorName: &vendor, MonthlyCost: &cost}}, nil
}

// manualSource holds completions until fire is called.
type manualSource struct {
	mu    sync.Mutex
	dones []func(error)
}

func (m *manualSource) Schedule(task domain.OptimizationTask, done func(error)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dones = append(m.dones, done)
	return func() {}
}

func (m *manualSource) fire() {
	m.mu.Lock()
	dones := m.dones
	m.dones = nil
	m.mu.Unlock()
	for _, d := range dones {
		d(nil)
	}
}

func newTestApp(t *testing.T, source optimize.CompletionSource) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Extraction.Workers = 2
	cfg.Analysis.ManualRefresh = true

	a, err := Build(cfg, Deps{Extractor: fakeService{}, Analyzer: fakeService{}, Completion: source}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func TestBuild_RequiresServices(t *testing.T) {
	_, err := Build(config.Default(), Deps{}, zerolog.Nop())
	require.Error(t, err)
}

func TestBuild_InvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Reconcile.Schedule = "not a schedule"
	_, err := Build(cfg, Deps{Extractor: fakeService{}, Analyzer: fakeService{}}, zerolog.Nop())
	require.Error(t, err)
}

func TestConfiguredDedupPoliciesParse(t *testing.T) {
	for _, name := range []string{config.DedupPolicyAppend, config.DedupPolicyMergeVendor} {
		p, err := reconcile.ParsePolicy(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.String())
	}
}

func TestImport_EndToEnd(t *testing.T) {
	source := &manualSource{}
	a := newTestApp(t, source)

	dir := t.TempDir()
	p := filepath.Join(dir, "acme.txt")
	require.NoError(t, os.WriteFile(p, []byte("Acme"), 0o600))
	missing := filepath.Join(dir, "missing.pdf")

	batch, failed, err := a.Import(context.Background(), []string{p, missing})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := batch.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)

	expenses := a.Store.ListExpenses()
	require.Len(t, expenses, 1)
	assert.Equal(t, "Acme", expenses[0].VendorName)

	job, err := a.Jobs.GetJob(context.Background(), batch.JobIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusDone, job.Status)
	assert.Equal(t, res.Succeeded[0], job.ExpenseID)

	run, err := a.Reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, run.Added, 1)

	recs, err := a.Engine.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	task, ok, err := a.Tasks.Accept(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)

	sum := a.Summary()
	assert.Equal(t, 1, sum.ActiveTasks)
	assert.Equal(t, 1, sum.ExpenseCount)

	source.fire()
	require.Eventually(t, func() bool {
		return a.Summary().CompletedTasks == 1
	}, time.Second, 10*time.Millisecond)
}

func TestImport_NothingLoaded(t *testing.T) {
	a := newTestApp(t, &manualSource{})
	_, failed, err := a.Import(context.Background(), []string{"/does/not/exist.pdf"})
	require.Error(t, err)
	assert.Len(t, failed, 1)

	_, _, err = a.Import(context.Background(), nil)
	require.Error(t, err)
}

func TestReset_ClearsSession(t *testing.T) {
	source := &manualSource{}
	a := newTestApp(t, source)

	_, err := a.Store.AddExpense(domain.Expense{ID: "e1", VendorName: "Acme", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	recs, err := a.Engine.Refresh(context.Background())
	require.NoError(t, err)
	_, ok, err := a.Tasks.Accept(context.Background(), recs[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, a.Tasks.Pending())

	a.Reset()

	assert.Empty(t, a.Store.ListExpenses())
	assert.Empty(t, a.Store.ListTasks())
	assert.Empty(t, a.Engine.List())
	assert.Equal(t, 0, a.Tasks.Pending())

	source.fire()
	assert.Empty(t, a.Store.ListTasks())
}

func TestStart_AutoRefreshFollowsExpenses(t *testing.T) {
	cfg := config.Default()
	a, err := Build(cfg, Deps{Extractor: fakeService{}, Analyzer: fakeService{}}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Close(context.Background())

	_, err = a.Store.AddExpense(domain.Expense{ID: "e1", VendorName: "Acme", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(a.Engine.List()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

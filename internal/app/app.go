// Package app wires the record store, the extraction pool and the
// optimization components into one service with a shared lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/config"
	"github.com/dvloznov/costpilot/internal/docsource"
	"github.com/dvloznov/costpilot/internal/jobs/inmemory"
	"github.com/dvloznov/costpilot/internal/optimize"
	"github.com/dvloznov/costpilot/internal/pipeline"
	"github.com/dvloznov/costpilot/internal/recommend"
	"github.com/dvloznov/costpilot/internal/reconcile"
	"github.com/dvloznov/costpilot/internal/report"
	"github.com/dvloznov/costpilot/internal/store"
)

// Deps are the external collaborators. Objects may be nil, which disables
// gs:// documents. A nil Completion uses a timer with the configured delay.
type Deps struct {
	Extractor  ai.Extractor
	Analyzer   ai.Analyzer
	Objects    docsource.ObjectReader
	Completion optimize.CompletionSource
}

// App holds every component of a running service.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Jobs       *inmemory.Store
	Pool       *pipeline.Pool
	Reconciler *reconcile.Reconciler
	Engine     *recommend.Engine
	Tasks      *optimize.Scheduler
	Documents  *docsource.Loader

	audits *reconcile.Scheduler
	log    zerolog.Logger
}

// New builds an App backed by Gemini and, when configured, Cloud Storage.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	client, err := ai.NewGeminiClient(ctx, *cfg, log)
	if err != nil {
		return nil, err
	}

	deps := Deps{Extractor: client, Analyzer: client}
	if storageEnabled(cfg.Storage) {
		reader, err := docsource.NewGCSReader(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		deps.Objects = reader
	}
	return Build(cfg, deps, log)
}

func storageEnabled(cfg config.StorageConfig) bool {
	return cfg.Bucket != "" || cfg.CredentialsFile != "" || cfg.Endpoint != ""
}

// Build assembles an App from explicit dependencies.
func Build(cfg *config.Config, deps Deps, log zerolog.Logger) (*App, error) {
	if deps.Extractor == nil || deps.Analyzer == nil {
		return nil, errors.New("extractor and analyzer are required")
	}

	policy, err := reconcile.ParsePolicy(cfg.Reconcile.DedupPolicy)
	if err != nil {
		return nil, err
	}

	st := store.New()
	jobStore := inmemory.NewStore()

	a := &App{
		Config: cfg,
		Store:  st,
		Jobs:   jobStore,
		Pool: pipeline.NewPool(st, deps.Extractor, pipeline.Options{
			Workers:   cfg.Extraction.Workers,
			QueueSize: cfg.Extraction.QueueSize,
			Timeout:   cfg.Extraction.Timeout,
			JobStore:  jobStore,
		}, log),
		Reconciler: reconcile.New(st, deps.Analyzer, reconcile.Options{
			Policy:  policy,
			Timeout: cfg.Analysis.Timeout,
		}, log),
		Engine: recommend.New(st, deps.Analyzer, recommend.Options{
			Timeout: cfg.Analysis.Timeout,
		}, log),
		Documents: docsource.NewLoader(deps.Objects, int64(cfg.Server.MaxUploadMB)<<20, log).
			WithBucket(cfg.Storage.Bucket),
		log: log.With().Str("component", "app").Logger(),
	}

	source := deps.Completion
	if source == nil {
		source = optimize.TimerSource{Delay: cfg.Optimization.CompletionDelay}
	}
	a.Tasks = optimize.NewScheduler(st, a.Engine, source, log)

	if cfg.Reconcile.Schedule != "" {
		a.audits, err = a.Reconciler.Schedule(cfg.Reconcile.Schedule, cfg.Analysis.Timeout)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Start launches the extraction workers, the recommendation auto-refresh
// loop and the audit schedule.
func (a *App) Start(ctx context.Context) error {
	if err := a.Pool.Start(ctx); err != nil {
		return err
	}
	if !a.Config.Analysis.ManualRefresh {
		a.Engine.Start(context.WithoutCancel(ctx))
	}
	if a.audits != nil {
		a.audits.Start()
	}
	a.log.Info().
		Bool("auto_refresh", !a.Config.Analysis.ManualRefresh).
		Str("dedup_policy", a.Reconciler.Policy().String()).
		Str("audit_schedule", a.Config.Reconcile.Schedule).
		Msg("service started")
	return nil
}

// Close shuts components down in dependency order: no new audits, drain
// extraction, stop refreshes, then cancel pending task triggers.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.audits != nil {
		a.audits.Stop()
	}
	if err := a.Pool.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close extraction pool: %w", err))
	}
	a.Engine.Stop()
	a.Tasks.Close()
	if err := a.Documents.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close document source: %w", err))
	}

	a.log.Info().Msg("service stopped")
	return errors.Join(errs...)
}

// Reset ends the session: pending task triggers are cancelled and every
// collection, the working set and finished batches are discarded.
// Extractions still in flight may add records after the reset.
func (a *App) Reset() {
	stopped := a.Tasks.StopAll()
	a.Store.Reset()
	a.Engine.Clear()
	a.Pool.Forget()
	a.Jobs.Reset()
	a.log.Info().Int("stopped_triggers", stopped).Msg("session reset")
}

// Summary computes dashboard figures from the current store contents.
func (a *App) Summary() report.Summary {
	return report.Build(a.Store.ListExpenses(), a.Store.ListRecurring(), a.Store.ListTasks())
}

// Import loads documents by URI and submits those that loaded as one
// batch. Load failures are returned alongside the batch.
func (a *App) Import(ctx context.Context, uris []string) (*pipeline.Batch, []docsource.LoadError, error) {
	docs, failed := a.Documents.LoadAll(ctx, uris)
	if len(docs) == 0 {
		if len(failed) > 0 {
			return nil, failed, fmt.Errorf("none of %d documents could be loaded", len(uris))
		}
		return nil, nil, errors.New("no documents to import")
	}

	batch, err := a.Pool.Submit(ctx, docs)
	if err != nil {
		return nil, failed, err
	}
	return batch, failed, nil
}

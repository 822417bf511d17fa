package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/costpilot/internal/app"
	"github.com/dvloznov/costpilot/internal/config"
	"github.com/dvloznov/costpilot/internal/logger"
	"github.com/dvloznov/costpilot/internal/pipeline"
)

// session is one CLI run against a fresh in-memory service.
type session struct {
	app *app.App
	log zerolog.Logger
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	// The scheduled audit belongs to the server.
	cfg.Reconcile.Schedule = ""
	cfg.Analysis.ManualRefresh = true

	log, err := logger.NewWithConfig(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return &session{app: a, log: log}, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.app.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// ingest loads and extracts every document and waits for the batch.
// Individual failures are reported, not fatal.
func (s *session) ingest(ctx context.Context, uris []string) (pipeline.BatchResult, error) {
	batch, loadFailures, err := s.app.Import(ctx, uris)
	for _, f := range loadFailures {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", f.URI, f.Err)
	}
	if err != nil {
		return pipeline.BatchResult{}, err
	}

	res, err := batch.Wait(ctx)
	if err != nil {
		return res, fmt.Errorf("waiting for extraction: %w", err)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "failed %s: %s\n", f.DocumentName, f.Error)
	}
	if len(res.Succeeded) == 0 {
		return res, errors.New("no document could be extracted")
	}
	return res, nil
}

// withSession ingests the command's arguments and then runs fn.
func withSession(fn func(ctx context.Context, s *session) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(context.WithoutCancel(ctx))

		if _, err := s.ingest(ctx, args); err != nil {
			return err
		}
		return fn(ctx, s)
	}
}

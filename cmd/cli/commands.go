package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var approveAll bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <document>...",
	Short: "Extract expenses from documents",
	Long: `Extract one expense per document and print the resulting records.

Examples:
  costpilot ingest receipts/*.pdf
  costpilot ingest gs://my-bucket/2024/03/invoice.pdf --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session) error {
		expenses := s.app.Store.ListExpenses()
		if approveAll {
			ids := make([]string, len(expenses))
			for i, e := range expenses {
				ids[i] = e.ID
			}
			s.app.Store.ApproveExpenses(ids...)
			expenses = s.app.Store.ListExpenses()
		}
		return printExpenses(expenses)
	}),
}

var auditCmd = &cobra.Command{
	Use:   "audit <document>...",
	Short: "Detect subscriptions and recurring costs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session) error {
		if _, err := s.app.Reconciler.Run(ctx); err != nil {
			return err
		}
		return printRecurring(s.app.Store.ListRecurring())
	}),
}

var acceptAll bool

var recommendCmd = &cobra.Command{
	Use:   "recommend <document>...",
	Short: "Propose savings for the ingested expenses",
	Long: `Analyze the ingested expenses and print savings recommendations.

With --accept every recommendation is turned into an optimization task and
the command waits until all tasks have finished.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session) error {
		recs, err := s.app.Engine.Refresh(ctx)
		if err != nil {
			return err
		}
		if !acceptAll {
			return printRecommendations(recs)
		}

		if _, err := s.app.Reconciler.Run(ctx); err != nil {
			s.log.Warn().Err(err).Msg("audit failed, recurring costs will not be tracked")
		}
		for _, r := range recs {
			if _, _, err := s.app.Tasks.Accept(ctx, r.ID); err != nil {
				return err
			}
		}
		if err := waitForTasks(ctx, s); err != nil {
			return err
		}
		return printTasks(s.app.Store.ListTasks())
	}),
}

func init() {
	ingestCmd.Flags().BoolVar(&approveAll, "approve", false, "mark every extracted expense approved")
	recommendCmd.Flags().BoolVar(&acceptAll, "accept", false, "accept every recommendation and wait for the tasks")
}

func waitForTasks(ctx context.Context, s *session) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for s.app.Tasks.Pending() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for tasks: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

var summaryCmd = &cobra.Command{
	Use:   "summary <document>...",
	Short: "Print spend totals, monthly breakdown and recurring costs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session) error {
		if _, err := s.app.Reconciler.Run(ctx); err != nil {
			s.log.Warn().Err(err).Msg("audit failed, summary excludes recurring costs")
		}
		return printSummary(s.app.Summary())
	}),
}

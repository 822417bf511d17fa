// Package reconcile implements the recurrence reconciler: an on-demand
// audit that asks the analysis service for subscription candidates and
// merges them into the recurring-cost set.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/metrics"
	"github.com/dvloznov/costpilot/internal/store"
)

// RunResult describes one audit run.
type RunResult struct {
	RunAt    time.Time              `json:"run_at"`
	Detected int                    `json:"detected"`
	Added    []domain.RecurringCost `json:"added"`
	Updated  []domain.RecurringCost `json:"updated"`
	Skipped  bool                   `json:"skipped"` // no expenses, service not called
}

// Options configures a Reconciler.
type Options struct {
	Policy  MergePolicy
	Timeout time.Duration // per analysis call; zero means no extra deadline
}

// Reconciler runs audits against the record store.
type Reconciler struct {
	store    *store.Store
	analyzer ai.Analyzer
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	// runs are serialized so two audits never interleave their merges.
	runMu sync.Mutex
}

// New creates a reconciler.
func New(st *store.Store, analyzer ai.Analyzer, opts Options, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		analyzer: analyzer,
		opts:     opts,
		log:      log.With().Str("component", "reconciler").Logger(),
		now:      time.Now,
	}
}

// Policy returns the configured merge policy.
func (r *Reconciler) Policy() MergePolicy {
	return r.opts.Policy
}

// Run audits the current expense set once. On an empty expense set it
// returns a skipped result without calling the service. A service failure
// leaves the recurring-cost set untouched and is returned as an
// *ai.AnalysisError.
func (r *Reconciler) Run(ctx context.Context) (RunResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runAt := r.now()
	result := RunResult{RunAt: runAt, Added: []domain.RecurringCost{}, Updated: []domain.RecurringCost{}}

	expenses := r.store.ListExpenses()
	if len(expenses) == 0 {
		r.log.Debug().Msg("no expenses, audit skipped")
		result.Skipped = true
		return result, nil
	}

	callCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	candidates, err := r.analyzer.DetectSubscriptions(callCtx, expenses)
	metrics.AnalysisCallsTotal.WithLabelValues("detect_subscriptions", metrics.ResultLabel(err)).Inc()
	if err != nil {
		var anErr *ai.AnalysisError
		if !errors.As(err, &anErr) {
			err = &ai.AnalysisError{Op: "detect_subscriptions", Err: err}
		}
		r.log.Error().Err(err).Int("expenses", len(expenses)).Msg("subscription detection failed")
		return result, err
	}

	detected := r.toDetections(candidates, runAt)
	result.Detected = len(detected)
	if len(detected) == 0 {
		r.log.Info().Msg("audit found no recurring costs")
		return result, nil
	}

	switch r.opts.Policy {
	case PolicyMergeByVendor:
		err = r.store.ReplaceRecurring(func(current []domain.RecurringCost) ([]domain.RecurringCost, error) {
			next, added, updated := mergeByVendor(current, detected)
			result.Added = append(result.Added, added...)
			result.Updated = append(result.Updated, updated...)
			return next, nil
		})
	default:
		records := make([]domain.RecurringCost, len(detected))
		for i, d := range detected {
			records[i] = d.record
		}
		err = r.store.AppendRecurring(records...)
		if err == nil {
			result.Added = records
		}
	}
	if err != nil {
		return RunResult{RunAt: runAt, Added: []domain.RecurringCost{}, Updated: []domain.RecurringCost{}},
			fmt.Errorf("merge recurring costs: %w", err)
	}

	metrics.RecurringDetectedTotal.Add(float64(len(result.Added) + len(result.Updated)))
	r.log.Info().
		Str("policy", r.opts.Policy.String()).
		Int("detected", result.Detected).
		Int("added", len(result.Added)).
		Int("updated", len(result.Updated)).
		Msg("audit finished")
	return result, nil
}

// toDetections synthesizes records with fresh IDs and defaults. Every
// record of one run shares runAt.
func (r *Reconciler) toDetections(candidates []ai.SubscriptionCandidate, runAt time.Time) []detection {
	out := make([]detection, 0, len(candidates))
	for _, c := range candidates {
		d := detection{record: domain.RecurringCost{
			ID:          uuid.New().String(),
			VendorName:  domain.DefaultRecurringVendor,
			MonthlyCost: decimal.Zero,
			RenewalDate: domain.DefaultRenewalDate(),
			Status:      domain.RecurringStatusActive,
			DetectedAt:  runAt,
		}}

		if c.VendorName != nil {
			d.record.VendorName = *c.VendorName
		}
		if c.MonthlyCost != nil {
			d.record.MonthlyCost = c.MonthlyCost.Abs()
			d.hasCost = true
		}
		if c.RenewalDate != nil {
			date, err := domain.ParseDate(*c.RenewalDate)
			if err != nil {
				r.log.Warn().Err(err).Str("renewal_date", *c.RenewalDate).Msg("invalid renewal date, using default")
			} else {
				d.record.RenewalDate = date
				d.hasRenewal = true
			}
		}
		if c.Flagged != nil && *c.Flagged {
			d.record.Flagged = true
			d.flaggedTrue = true
		}
		if c.Reason != nil {
			d.record.Reason = *c.Reason
			d.hasReason = true
		}
		out = append(out, d)
	}
	return out
}

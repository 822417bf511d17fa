// Package ai defines the contracts of the two external collaborators, the
// document-extraction service and the pattern-analysis service, and a
// Gemini-backed implementation of both.
package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/costpilot/internal/domain"
)

// Extractor turns raw document bytes into a best-effort expense.
type Extractor interface {
	ExtractExpense(ctx context.Context, content []byte, mediaType string) (*ExtractedExpense, error)
}

// Analyzer inspects an expense set for savings and recurring costs.
type Analyzer interface {
	AnalyzeSpending(ctx context.Context, expenses []domain.Expense) ([]SavingsFinding, error)
	DetectSubscriptions(ctx context.Context, expenses []domain.Expense) ([]SubscriptionCandidate, error)
}

// ExtractedExpense is the raw extraction result. Every field is optional;
// nil means the service did not report it.
type ExtractedExpense struct {
	VendorName *string
	Amount     *decimal.Decimal
	Currency   *string
	Date       *string // YYYY-MM-DD as reported, unvalidated
	Category   *string
}

// SavingsFinding is one savings opportunity reported by the analysis service.
type SavingsFinding struct {
	VendorName      string
	Reason          string
	EstimatedSaving decimal.Decimal
	Action          string
}

// SubscriptionCandidate is one recurring cost reported by the analysis
// service. Optional fields are nil when absent.
type SubscriptionCandidate struct {
	VendorName  *string
	MonthlyCost *decimal.Decimal
	RenewalDate *string
	Flagged     *bool
	Reason      *string
}

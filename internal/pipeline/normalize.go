package pipeline

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
)

// toExpense fills defaults for every field the extraction service left out.
// The returned expense has no ID and no CreatedAt.
func toExpense(x *ai.ExtractedExpense, today civil.Date, log zerolog.Logger) domain.Expense {
	e := domain.Expense{
		VendorName: domain.DefaultVendorName,
		Amount:     decimal.Zero,
		Currency:   domain.DefaultCurrency,
		Date:       today,
		Category:   domain.DefaultCategory,
		Status:     domain.ExpenseStatusPending,
	}
	if x == nil {
		return e
	}

	if x.VendorName != nil {
		e.VendorName = *x.VendorName
	}
	if x.Amount != nil {
		e.Amount = x.Amount.Abs()
	}
	if x.Currency != nil {
		e.Currency = strings.ToUpper(*x.Currency)
	}
	if x.Category != nil {
		e.Category = normalizeCategory(*x.Category)
	}
	if x.Date != nil {
		d, err := domain.ParseDate(*x.Date)
		if err != nil {
			log.Warn().Err(err).Str("date", *x.Date).Msg("invalid extracted date, using today")
		} else {
			e.Date = d
		}
	}
	return e
}

// normalizeCategory collapses inner whitespace; casing is kept as reported.
func normalizeCategory(c string) string {
	c = strings.Join(strings.Fields(c), " ")
	if c == "" {
		return domain.DefaultCategory
	}
	return c
}

// Package report derives dashboard rollups from the record store. Build is
// a pure function: the same input always yields the same Summary.
package report

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/costpilot/internal/domain"
)

// CategoryAmount is the spend of one category within a month.
type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthBucket groups the spend of one calendar month.
type MonthBucket struct {
	Month      string           `json:"month"` // YYYY-MM
	Label      string           `json:"label"` // "Jan 24"
	Start      civil.Date       `json:"start"`
	Total      decimal.Decimal  `json:"total"`
	Categories []CategoryAmount `json:"categories"`
}

// Series is one category's spend per month, aligned with Summary.Months.
type Series struct {
	Category string            `json:"category"`
	Values   []decimal.Decimal `json:"values"`
}

// Summary is the full set of dashboard figures.
type Summary struct {
	TotalSpend          decimal.Decimal `json:"total_spend"`
	FlaggedMonthlyTotal decimal.Decimal `json:"flagged_monthly_total"`
	RealisedSavings     decimal.Decimal `json:"realised_savings"`

	Months []MonthBucket `json:"months"`
	Series []Series      `json:"series"`

	ExpenseCount   int `json:"expense_count"`
	ApprovedCount  int `json:"approved_count"`
	PendingCount   int `json:"pending_count"`
	RecurringCount int `json:"recurring_count"`
	FlaggedCount   int `json:"flagged_count"`
	ActiveTasks    int `json:"active_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
}

type monthKey struct {
	year  int
	month time.Month
}

// Build computes the summary. Months are ordered by their start date and
// categories by name, never by input order.
func Build(expenses []domain.Expense, recurring []domain.RecurringCost, tasks []domain.OptimizationTask) Summary {
	s := Summary{
		TotalSpend:          decimal.Zero,
		FlaggedMonthlyTotal: decimal.Zero,
		RealisedSavings:     decimal.Zero,
		Months:              []MonthBucket{},
		Series:              []Series{},
		ExpenseCount:        len(expenses),
		RecurringCount:      len(recurring),
	}

	buckets := make(map[monthKey]map[string]decimal.Decimal)
	categories := make(map[string]bool)
	for _, e := range expenses {
		s.TotalSpend = s.TotalSpend.Add(e.Amount)
		if e.Approved() {
			s.ApprovedCount++
		} else {
			s.PendingCount++
		}

		k := monthKey{e.Date.Year, e.Date.Month}
		if buckets[k] == nil {
			buckets[k] = make(map[string]decimal.Decimal)
		}
		buckets[k][e.Category] = buckets[k][e.Category].Add(e.Amount)
		categories[e.Category] = true
	}

	for _, r := range recurring {
		if r.Flagged {
			s.FlaggedCount++
			s.FlaggedMonthlyTotal = s.FlaggedMonthlyTotal.Add(r.MonthlyCost)
		}
	}

	for _, t := range tasks {
		switch t.Status {
		case domain.TaskStatusInProgress, domain.TaskStatusPending:
			s.ActiveTasks++
		case domain.TaskStatusCompleted:
			s.CompletedTasks++
			s.RealisedSavings = s.RealisedSavings.Add(t.EstimatedSaving)
		case domain.TaskStatusFailed:
			s.FailedTasks++
		}
	}

	keys := make([]monthKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)

	for _, k := range keys {
		start := civil.Date{Year: k.year, Month: k.month, Day: 1}
		b := MonthBucket{
			Month:      start.In(time.UTC).Format("2006-01"),
			Label:      start.In(time.UTC).Format("Jan 06"),
			Start:      start,
			Total:      decimal.Zero,
			Categories: []CategoryAmount{},
		}
		for _, name := range names {
			amount, ok := buckets[k][name]
			if !ok {
				continue
			}
			b.Total = b.Total.Add(amount)
			b.Categories = append(b.Categories, CategoryAmount{Category: name, Amount: amount})
		}
		s.Months = append(s.Months, b)
	}

	for _, name := range names {
		series := Series{Category: name, Values: make([]decimal.Decimal, len(keys))}
		for i, k := range keys {
			series.Values[i] = buckets[k][name]
		}
		s.Series = append(s.Series, series)
	}

	return s
}

package pipeline

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/domain"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestToExpense(t *testing.T) {
	today := civil.Date{Year: 2024, Month: 5, Day: 10}

	tests := []struct {
		name string
		in   *ai.ExtractedExpense
		want domain.Expense
	}{
		{
			name: "all fields missing",
			in:   &ai.ExtractedExpense{},
			want: domain.Expense{
				VendorName: "Unknown Vendor", Amount: decimal.Zero, Currency: "EUR",
				Date: today, Category: "General", Status: domain.ExpenseStatusPending,
			},
		},
		{
			name: "nil result",
			in:   nil,
			want: domain.Expense{
				VendorName: "Unknown Vendor", Amount: decimal.Zero, Currency: "EUR",
				Date: today, Category: "General", Status: domain.ExpenseStatusPending,
			},
		},
		{
			name: "all fields present",
			in: &ai.ExtractedExpense{
				VendorName: strPtr("Acme"), Amount: decPtr("19.99"), Currency: strPtr("usd"),
				Date: strPtr("2024-02-29"), Category: strPtr("  Cloud   Hosting "),
			},
			want: domain.Expense{
				VendorName: "Acme", Amount: decimal.RequireFromString("19.99"), Currency: "USD",
				Date: civil.Date{Year: 2024, Month: 2, Day: 29}, Category: "Cloud Hosting",
				Status: domain.ExpenseStatusPending,
			},
		},
		{
			name: "negative amount stored as absolute value",
			in:   &ai.ExtractedExpense{Amount: decPtr("-12.50")},
			want: domain.Expense{
				VendorName: "Unknown Vendor", Amount: decimal.RequireFromString("12.5"), Currency: "EUR",
				Date: today, Category: "General", Status: domain.ExpenseStatusPending,
			},
		},
		{
			name: "invalid date falls back to today",
			in:   &ai.ExtractedExpense{Date: strPtr("31/02/2024")},
			want: domain.Expense{
				VendorName: "Unknown Vendor", Amount: decimal.Zero, Currency: "EUR",
				Date: today, Category: "General", Status: domain.ExpenseStatusPending,
			},
		},
		{
			name: "timestamp date accepted",
			in:   &ai.ExtractedExpense{Date: strPtr("2024-01-15T10:00:00Z")},
			want: domain.Expense{
				VendorName: "Unknown Vendor", Amount: decimal.Zero, Currency: "EUR",
				Date: civil.Date{Year: 2024, Month: 1, Day: 15}, Category: "General",
				Status: domain.ExpenseStatusPending,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toExpense(tt.in, today, zerolog.Nop())
			assert.Equal(t, tt.want.VendorName, got.VendorName)
			assert.True(t, tt.want.Amount.Equal(got.Amount), "amount %s != %s", got.Amount, tt.want.Amount)
			assert.Equal(t, tt.want.Currency, got.Currency)
			assert.Equal(t, tt.want.Date, got.Date)
			assert.Equal(t, tt.want.Category, got.Category)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Empty(t, got.ID)
		})
	}
}

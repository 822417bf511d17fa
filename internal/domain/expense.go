package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Defaults applied when the extraction service leaves a field empty.
const (
	DefaultVendorName = "Unknown Vendor"
	DefaultCurrency   = "EUR"
	DefaultCategory   = "General"
)

// ExpenseStatus is the approval state of an expense.
type ExpenseStatus string

const (
	ExpenseStatusPending  ExpenseStatus = "pending"
	ExpenseStatusApproved ExpenseStatus = "approved"
)

// Expense represents one normalized financial document.
// This is a domain struct owned by the record store; every mutation
// produces a new value.
type Expense struct {
	ID         string          `json:"id"`
	VendorName string          `json:"vendor_name"` // from "vendorName"
	Amount     decimal.Decimal `json:"amount"`      // never negative
	Currency   string          `json:"currency"`    // ISO-4217-like code, stored as extracted
	Date       civil.Date      `json:"date"`        // document date (YYYY-MM-DD)
	Category   string          `json:"category"`
	Status     ExpenseStatus   `json:"status"`

	// CreatedAt is the store insertion time and the "most recent first" key.
	CreatedAt time.Time `json:"created_at"`
}

// Approved reports whether the expense has been approved.
func (e Expense) Approved() bool {
	return e.Status == ExpenseStatusApproved
}

// Today returns the current calendar date in local time.
func Today() civil.Date {
	return civil.DateOf(time.Now())
}

// ParseDate accepts YYYY-MM-DD and full RFC 3339 timestamps.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	d, err := civil.ParseDate(s)
	if err == nil {
		return d, nil
	}
	if t, terr := time.Parse(time.RFC3339, s); terr == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, err
}

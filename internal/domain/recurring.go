package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Defaults applied to subscription candidates with missing fields.
const (
	DefaultRecurringVendor = "Unknown"

	// DefaultRenewalDays is added to today when no renewal date was detected.
	DefaultRenewalDays = 30
)

// RecurringStatus is the lifecycle state of a recurring cost line.
type RecurringStatus string

const (
	RecurringStatusActive     RecurringStatus = "active"
	RecurringStatusOptimizing RecurringStatus = "optimizing"
	RecurringStatusCompleted  RecurringStatus = "completed"
)

// RecurringCost is a detected subscription or recurring vendor cost.
// Vendor names are not unique: two lines for one vendor may be distinct costs.
type RecurringCost struct {
	ID          string          `json:"id"`
	VendorName  string          `json:"vendor_name"`
	MonthlyCost decimal.Decimal `json:"monthly_cost"`
	RenewalDate civil.Date      `json:"renewal_date"`
	Flagged     bool            `json:"flagged"`
	Reason      string          `json:"reason,omitempty"`
	Status      RecurringStatus `json:"status"`

	// DetectedAt is shared by every record produced in the same audit run.
	DetectedAt time.Time `json:"detected_at"`
}

// DefaultRenewalDate returns today + DefaultRenewalDays.
func DefaultRenewalDate() civil.Date {
	return Today().AddDays(DefaultRenewalDays)
}

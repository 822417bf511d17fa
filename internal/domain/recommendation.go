package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is an ephemeral savings suggestion held by the
// recommendation engine. ID is synthetic and assigned at receipt, so
// acceptance never depends on list position.
type Recommendation struct {
	ID              string          `json:"id"`
	VendorName      string          `json:"vendor_name"`
	Reason          string          `json:"reason"`
	EstimatedSaving decimal.Decimal `json:"estimated_saving"`
	Action          string          `json:"action"`
	ReceivedAt      time.Time       `json:"received_at"`
}

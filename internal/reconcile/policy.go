package reconcile

import (
	"fmt"
	"strings"

	"github.com/dvloznov/costpilot/internal/domain"
)

// MergePolicy decides how detected records join the existing set.
type MergePolicy int

const (
	// PolicyAppend appends every detected record. Repeated audits may
	// produce visible duplicates.
	PolicyAppend MergePolicy = iota
	// PolicyMergeByVendor updates an existing record of the same vendor
	// (case-insensitive) instead of appending. Each existing record is
	// matched at most once per run; unmatched detections are appended.
	PolicyMergeByVendor
)

// Configuration names of the merge policies.
const (
	PolicyNameAppend      = "append"
	PolicyNameMergeVendor = "merge_vendor"
)

func (p MergePolicy) String() string {
	switch p {
	case PolicyAppend:
		return PolicyNameAppend
	case PolicyMergeByVendor:
		return PolicyNameMergeVendor
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration value to a MergePolicy.
func ParsePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", PolicyNameAppend:
		return PolicyAppend, nil
	case PolicyNameMergeVendor:
		return PolicyMergeByVendor, nil
	default:
		return PolicyAppend, fmt.Errorf("unknown dedup policy %q", s)
	}
}

// detection pairs a synthesized record with the fields the service reported.
type detection struct {
	record      domain.RecurringCost
	hasCost     bool
	hasRenewal  bool
	hasReason   bool
	flaggedTrue bool
}

func vendorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// mergeByVendor returns the next recurring set plus the records that were
// added and updated.
func mergeByVendor(current []domain.RecurringCost, detected []detection) (next, added, updated []domain.RecurringCost) {
	next = make([]domain.RecurringCost, len(current), len(current)+len(detected))
	copy(next, current)

	claimed := make([]bool, len(current))
	for _, d := range detected {
		key := vendorKey(d.record.VendorName)
		match := -1
		for i := range current {
			if !claimed[i] && vendorKey(current[i].VendorName) == key {
				match = i
				break
			}
		}

		if match < 0 {
			next = append(next, d.record)
			added = append(added, d.record)
			continue
		}

		claimed[match] = true
		r := next[match]
		if d.hasCost {
			r.MonthlyCost = d.record.MonthlyCost
		}
		if d.hasRenewal {
			r.RenewalDate = d.record.RenewalDate
		}
		if d.hasReason {
			r.Reason = d.record.Reason
		}
		r.Flagged = r.Flagged || d.flaggedTrue
		r.DetectedAt = d.record.DetectedAt
		next[match] = r
		updated = append(updated, r)
	}
	return next, added, updated
}

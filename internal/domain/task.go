package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned for a task status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid task status transition")

// TaskStatus represents the current status of an optimization task.
type TaskStatus string

const (
	// TaskStatusPending is never produced: accepted tasks start in progress.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates remediation work is under way.
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted indicates remediation finished.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the completion source reported a failure.
	TaskStatusFailed TaskStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// OptimizationTask is an accepted recommendation being remediated.
type OptimizationTask struct {
	ID               string          `json:"id"`
	RecommendationID string          `json:"recommendation_id"`
	VendorName       string          `json:"vendor_name"`
	Reason           string          `json:"reason"`
	EstimatedSaving  decimal.Decimal `json:"estimated_saving"`
	Action           string          `json:"action"`
	Status           TaskStatus      `json:"status"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// ValidateTransition checks that a task may move from one status to another.
// Transitions are one-directional: in-progress to completed or failed.
func ValidateTransition(from, to TaskStatus) error {
	if from == TaskStatusInProgress && (to == TaskStatusCompleted || to == TaskStatusFailed) {
		return nil
	}
	if from == TaskStatusPending && to == TaskStatusInProgress {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

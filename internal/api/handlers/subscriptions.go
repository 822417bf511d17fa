package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/reconcile"
	"github.com/dvloznov/costpilot/internal/store"
)

// Auditor runs a recurrence audit.
type Auditor interface {
	Run(ctx context.Context) (reconcile.RunResult, error)
}

// SubscriptionsHandler handles recurring-cost endpoints.
type SubscriptionsHandler struct {
	store   *store.Store
	auditor Auditor
	log     zerolog.Logger
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(st *store.Store, auditor Auditor, log zerolog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{store: st, auditor: auditor, log: log}
}

// ListSubscriptions handles GET /api/subscriptions
func (h *SubscriptionsHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	recurring := h.store.ListRecurring()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": recurring,
		"count":         len(recurring),
	})
}

// Audit handles POST /api/subscriptions/audit
func (h *SubscriptionsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	result, err := h.auditor.Run(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Subscription audit failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// recurringUpdate carries the fields a user may edit. Absent fields are kept.
type recurringUpdate struct {
	VendorName  *string                 `json:"vendor_name"`
	MonthlyCost *decimal.Decimal        `json:"monthly_cost"`
	RenewalDate *civil.Date             `json:"renewal_date"`
	Flagged     *bool                   `json:"flagged"`
	Reason      *string                 `json:"reason"`
	Status      *domain.RecurringStatus `json:"status"`
}

func validRecurringStatus(s domain.RecurringStatus) bool {
	switch s {
	case domain.RecurringStatusActive, domain.RecurringStatusOptimizing, domain.RecurringStatusCompleted:
		return true
	}
	return false
}

// UpdateSubscription handles PUT /api/subscriptions/{id}
func (h *SubscriptionsHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req recurringUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != nil && !validRecurringStatus(*req.Status) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if req.RenewalDate != nil && !req.RenewalDate.IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid renewal_date")
		return
	}

	var updated domain.RecurringCost
	err := h.store.ReplaceRecurring(func(current []domain.RecurringCost) ([]domain.RecurringCost, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			rc := &current[i]
			if req.VendorName != nil {
				rc.VendorName = *req.VendorName
			}
			if req.MonthlyCost != nil {
				rc.MonthlyCost = *req.MonthlyCost
			}
			if req.RenewalDate != nil {
				rc.RenewalDate = *req.RenewalDate
			}
			if req.Flagged != nil {
				rc.Flagged = *req.Flagged
			}
			if req.Reason != nil {
				rc.Reason = *req.Reason
			}
			if req.Status != nil {
				rc.Status = *req.Status
			}
			updated = *rc
			return current, nil
		}
		return nil, store.ErrNotFound
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to update subscription")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteSubscription handles DELETE /api/subscriptions/{id}
func (h *SubscriptionsHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if h.store.RemoveRecurring(mux.Vars(r)["id"]) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

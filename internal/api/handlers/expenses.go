package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/store"
)

// ExpensesHandler handles expense endpoints.
type ExpensesHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(st *store.Store, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{store: st, log: log}
}

// ListExpenses handles GET /api/expenses (most recent first).
func (h *ExpensesHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses := h.store.ListExpenses()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// Approve handles POST /api/expenses/approve {"ids": [...]}
func (h *ExpensesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	n := h.store.ApproveExpenses(ids...)
	h.log.Info().Int("requested", len(ids)).Int("approved", n).Msg("Expenses approved")
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"approved": n})
}

// Remove handles POST /api/expenses/remove {"ids": [...]}
func (h *ExpensesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	n := h.store.RemoveExpenses(ids...)
	h.log.Info().Int("requested", len(ids)).Int("removed", n).Msg("Expenses removed")
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"removed": n})
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/domain"
	"github.com/dvloznov/costpilot/internal/recommend"
)

// Recommender holds the working set of recommendations.
type Recommender interface {
	List() []domain.Recommendation
	Status() recommend.Status
	Refresh(ctx context.Context) ([]domain.Recommendation, error)
	Dismiss(id string) bool
}

// TaskAcceptor converts recommendations into tasks.
type TaskAcceptor interface {
	Accept(ctx context.Context, recommendationID string) (domain.OptimizationTask, bool, error)
}

// RecommendationsHandler handles recommendation endpoints.
type RecommendationsHandler struct {
	engine Recommender
	tasks  TaskAcceptor
	log    zerolog.Logger
}

// NewRecommendationsHandler creates a new recommendations handler.
func NewRecommendationsHandler(engine Recommender, tasks TaskAcceptor, log zerolog.Logger) *RecommendationsHandler {
	return &RecommendationsHandler{engine: engine, tasks: tasks, log: log}
}

// ListRecommendations handles GET /api/recommendations
func (h *RecommendationsHandler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": h.engine.List(),
		"status":          h.engine.Status(),
	})
}

// Refresh handles POST /api/recommendations/refresh
func (h *RecommendationsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Recommendation refresh failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// Accept handles POST /api/recommendations/{id}/accept. A recommendation
// that is no longer in the working set is a no-op answered with
// {"accepted": false}.
func (h *RecommendationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	task, ok, err := h.tasks.Accept(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err, "Failed to accept recommendation")
		return
	}
	if !ok {
		middleware.WriteJSON(w, http.StatusOK, map[string]bool{"accepted": false})
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, task)
}

// Dismiss handles DELETE /api/recommendations/{id}
func (h *RecommendationsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Dismiss(mux.Vars(r)["id"]) {
		middleware.WriteError(w, http.StatusNotFound, "Recommendation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

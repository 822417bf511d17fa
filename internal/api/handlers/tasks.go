package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/report"
	"github.com/dvloznov/costpilot/internal/store"
)

// TasksHandler handles optimization task endpoints.
type TasksHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(st *store.Store, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{store: st, log: log}
}

// ListTasks handles GET /api/tasks (most recent first).
func (h *TasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.store.ListTasks()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// SessionHandler serves dashboard figures and session reset.
type SessionHandler struct {
	summary func() report.Summary
	reset   func()
	log     zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(summary func() report.Summary, reset func(), log zerolog.Logger) *SessionHandler {
	return &SessionHandler{summary: summary, reset: reset, log: log}
}

// Summary handles GET /api/summary
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.summary())
}

// Reset handles POST /api/session/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.reset()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"time":   time.Now().Format(time.RFC3339),
	})
}

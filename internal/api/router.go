// Package api exposes the service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/api/handlers"
	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/app"
)

// NewRouter registers every route on a gorilla/mux router and wraps it in
// the middleware chain.
func NewRouter(a *app.App, log zerolog.Logger) http.Handler {
	maxBytes := int64(a.Config.Server.MaxUploadMB) << 20

	documents := handlers.NewDocumentsHandler(a.Pool, a, maxBytes, log)
	jobsHandler := handlers.NewJobsHandler(a.Jobs, log)
	expenses := handlers.NewExpensesHandler(a.Store, log)
	subscriptions := handlers.NewSubscriptionsHandler(a.Store, a.Reconciler, log)
	recommendations := handlers.NewRecommendationsHandler(a.Engine, a.Tasks, log)
	tasks := handlers.NewTasksHandler(a.Store, log)
	session := handlers.NewSessionHandler(a.Summary, a.Reset, log)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	// Subrouters do not inherit the root handlers.
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.NotFoundHandler = notFound
	apiRouter.MethodNotAllowedHandler = notAllowed

	apiRouter.HandleFunc("/documents", documents.Upload).Methods(http.MethodPost)
	apiRouter.HandleFunc("/documents/import", documents.Import).Methods(http.MethodPost)
	apiRouter.HandleFunc("/batches/{id}", documents.GetBatch).Methods(http.MethodGet)

	apiRouter.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)

	apiRouter.HandleFunc("/expenses", expenses.ListExpenses).Methods(http.MethodGet)
	apiRouter.HandleFunc("/expenses/approve", expenses.Approve).Methods(http.MethodPost)
	apiRouter.HandleFunc("/expenses/remove", expenses.Remove).Methods(http.MethodPost)

	apiRouter.HandleFunc("/subscriptions", subscriptions.ListSubscriptions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/subscriptions/audit", subscriptions.Audit).Methods(http.MethodPost)
	apiRouter.HandleFunc("/subscriptions/{id}", subscriptions.UpdateSubscription).Methods(http.MethodPut)
	apiRouter.HandleFunc("/subscriptions/{id}", subscriptions.DeleteSubscription).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/recommendations", recommendations.ListRecommendations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/recommendations/refresh", recommendations.Refresh).Methods(http.MethodPost)
	apiRouter.HandleFunc("/recommendations/{id}/accept", recommendations.Accept).Methods(http.MethodPost)
	apiRouter.HandleFunc("/recommendations/{id}", recommendations.Dismiss).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/tasks", tasks.ListTasks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/summary", session.Summary).Methods(http.MethodGet)
	apiRouter.HandleFunc("/session/reset", session.Reset).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"time":        time.Now().Format(time.RFC3339),
			"outstanding": a.Pool.Outstanding(),
		})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(r),
			),
		),
	)
}

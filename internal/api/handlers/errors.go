package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/costpilot/internal/ai"
	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/jobs"
	"github.com/dvloznov/costpilot/internal/logger"
	"github.com/dvloznov/costpilot/internal/store"
)

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	var analysisErr *ai.AnalysisError
	switch {
	case errors.As(err, &analysisErr):
		return http.StatusBadGateway
	case errors.Is(err, jobs.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Warn().Err(err).Msg(msg)
	}
	middleware.WriteError(w, status, msg+": "+err.Error())
}

// idsRequest is the body of bulk approve/remove calls.
type idsRequest struct {
	IDs []string `json:"ids"`
}

func decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if len(req.IDs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "ids are required")
		return nil, false
	}
	return req.IDs, true
}

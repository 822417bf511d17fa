package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/costpilot/internal/api/middleware"
	"github.com/dvloznov/costpilot/internal/docsource"
	"github.com/dvloznov/costpilot/internal/pipeline"
)

// Submitter accepts document batches.
type Submitter interface {
	Submit(ctx context.Context, docs []pipeline.Document) (*pipeline.Batch, error)
	Batch(id string) (*pipeline.Batch, bool)
}

// Importer loads documents by URI and submits them.
type Importer interface {
	Import(ctx context.Context, uris []string) (*pipeline.Batch, []docsource.LoadError, error)
}

// DocumentsHandler handles document ingestion endpoints.
type DocumentsHandler struct {
	pool     Submitter
	importer Importer
	maxBytes int64
	log      zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(pool Submitter, importer Importer, maxBytes int64, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		pool:     pool,
		importer: importer,
		maxBytes: maxBytes,
		log:      log,
	}
}

// rejectedDocument is an upload that never reached the pool.
type rejectedDocument struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type batchAccepted struct {
	BatchID  string                `json:"batch_id"`
	Total    int                   `json:"total"`
	JobIDs   []string              `json:"job_ids"`
	Rejected []rejectedDocument    `json:"rejected,omitempty"`
	Failed   []docsource.LoadError `json:"failed,omitempty"`
}

// Upload handles POST /api/documents (multipart, any number of files).
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	var (
		docs     []pipeline.Document
		rejected []rejectedDocument
	)
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			name := filepath.Base(fh.Filename)
			f, err := fh.Open()
			if err != nil {
				rejected = append(rejected, rejectedDocument{Name: name, Reason: err.Error()})
				continue
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				rejected = append(rejected, rejectedDocument{Name: name, Reason: err.Error()})
				continue
			}

			mediaType := docsource.ResolveMediaType(fh.Header.Get("Content-Type"), name, content)
			if !docsource.Supported(mediaType) {
				rejected = append(rejected, rejectedDocument{Name: name, Reason: "unsupported media type " + mediaType})
				continue
			}
			docs = append(docs, pipeline.Document{Name: name, MediaType: mediaType, Content: content})
		}
	}

	if len(docs) == 0 {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "No processable documents in upload",
			"rejected": rejected,
		})
		return
	}

	batch, err := h.pool.Submit(r.Context(), docs)
	if err != nil {
		writeServiceError(w, r, err, "Failed to submit documents")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, batchAccepted{
		BatchID:  batch.ID,
		Total:    batch.Total(),
		JobIDs:   batch.JobIDs(),
		Rejected: rejected,
	})
}

// Import handles POST /api/documents/import with gs:// URIs or local paths.
func (h *DocumentsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.URIs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "uris are required")
		return
	}

	batch, failed, err := h.importer.Import(r.Context(), req.URIs)
	if err != nil {
		if batch == nil && len(failed) > 0 {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  err.Error(),
				"failed": failed,
			})
			return
		}
		writeServiceError(w, r, err, "Failed to import documents")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, batchAccepted{
		BatchID: batch.ID,
		Total:   batch.Total(),
		JobIDs:  batch.JobIDs(),
		Failed:  failed,
	})
}

// GetBatch handles GET /api/batches/{id}
func (h *DocumentsHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.pool.Batch(mux.Vars(r)["id"])
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Batch not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, batch.Result())
}

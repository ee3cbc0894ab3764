package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
	"github.com/aerospike-examples/hybrid-search/internal/ingestion/validator"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/logger"
)

const maxBatchPages = 500

// Publisher is the event side of the ingestion service.
type Publisher interface {
	PublishPage(ctx context.Context, req *ingestion.PageRequest) (*ingestion.PageResponse, error)
	PublishPages(ctx context.Context, reqs []ingestion.PageRequest) ([]ingestion.PageResponse, error)
	CompleteCrawl(ctx context.Context, req *ingestion.CrawlCompleteRequest) (*ingestion.CrawlCompleteEvent, error)
}

type Handler struct {
	publisher Publisher
	logger    *slog.Logger
}

func New(pub Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Page handles POST /api/v1/pages.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidatePage(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.publisher.PublishPage(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("page ingestion failed", "url", req.URL, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Debug("page queued", "url", req.URL, "crawl_id", req.CrawlID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// PageBatch handles POST /api/v1/pages/batch.
func (h *Handler) PageBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var reqs []ingestion.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatchPages {
		h.writeError(w, http.StatusBadRequest, "batch must contain between 1 and 500 pages")
		return
	}
	for i := range reqs {
		if err := validator.ValidatePage(&reqs[i]); err != nil {
			h.writeValidationError(w, err)
			return
		}
	}

	resps, err := h.publisher.PublishPages(ctx, reqs)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("batch ingestion failed", "count", len(reqs), "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("page batch queued", "count", len(resps))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"pages": resps})
}

// CrawlComplete handles POST /api/v1/crawls/complete.
func (h *Handler) CrawlComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.CrawlCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateCrawlComplete(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}
	event, err := h.publisher.CompleteCrawl(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("crawl completion failed", "crawl_id", req.CrawlID, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "crawl completion failed")
		return
	}
	log.Info("crawl completion queued", "crawl_id", event.CrawlID, "pages", event.Pages)
	h.writeJSON(w, http.StatusAccepted, event)
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/smsh73/AAA/internal/collection"
	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

// CollectionService is the orchestrator surface used by the HTTP layer
type CollectionService interface {
	StartCollectionJob(ctx context.Context, req collection.StartRequest) (*collection.StartResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*contracts.CollectionJob, error)
	ListJobs(ctx context.Context, status contracts.JobStatus) ([]*contracts.CollectionJob, error)
	GetJobLogs(ctx context.Context, jobID string, afterID int64, limit int) ([]*contracts.UnitResult, error)
	CancelCollectionJob(ctx context.Context, jobID, reason string) (*contracts.CollectionJob, error)
}

// CollectionHandler handles collection-job endpoints
// ⭐ SSOT: 수집 API 핸들러는 이 구조체에서만
type CollectionHandler struct {
	service      CollectionService
	logger       *logger.Logger
	pollInterval time.Duration
	origins      []string
	upgrader     websocket.Upgrader
}

// NewCollectionHandler creates a new collection handler
func NewCollectionHandler(service CollectionService, log *logger.Logger) *CollectionHandler {
	h := &CollectionHandler{
		service:      service,
		logger:       log.Module("api.collection"),
		pollInterval: time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// WithAllowedOrigins lets browser pages on other origins open log streams
func (h *CollectionHandler) WithAllowedOrigins(origins []string) *CollectionHandler {
	h.origins = origins
	return h
}

// StartCollectionRequest is the body of POST /api/collections
type StartCollectionRequest struct {
	AnalystID       string   `json:"analyst_id" validate:"required"`
	CollectionTypes []string `json:"collection_types" validate:"required,min=1,dive,oneof=target_price performance sns media"`
	StartDate       string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string   `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// Start creates a collection job and dispatches it
// POST /api/collections
func (h *CollectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	// datetime 태그로 형식은 이미 검증됨
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)

	resp, err := h.service.StartCollectionJob(r.Context(), collection.StartRequest{
		AnalystID: req.AnalystID,
		Types:     req.CollectionTypes,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusAccepted, resp)
}

// List returns jobs in one status (default running)
// GET /api/collections?status=running
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	status := contracts.JobStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = contracts.JobRunning
	}

	jobs, err := h.service.ListJobs(r.Context(), status)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if jobs == nil {
		jobs = []*contracts.CollectionJob{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"count":  len(jobs),
		"jobs":   jobs,
	})
}

// Get returns the status and progress of a job
// GET /api/collections/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJobStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// CancelRequest is the optional body of POST /api/collections/{id}/cancel
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel moves a non-terminal job to cancelled
// POST /api/collections/{id}/cancel
func (h *CollectionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
	}

	job, err := h.service.CancelCollectionJob(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Logs pages the unit audit log
// GET /api/collections/{id}/logs?after=0&limit=100
func (h *CollectionHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	after, err := parseIntParam(q.Get("after"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'after' (expected integer log id)")
		return
	}
	limit, err := parseIntParam(q.Get("limit"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected integer)")
		return
	}

	logs, err := h.service.GetJobLogs(r.Context(), mux.Vars(r)["id"], after, int(limit))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*contracts.UnitResult{}
	}

	next := after
	if len(logs) > 0 {
		next = logs[len(logs)-1].ID
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":       logs,
		"next_after": next,
	})
}

func parseIntParam(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

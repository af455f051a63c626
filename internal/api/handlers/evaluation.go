package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/evaluation"
	"github.com/smsh73/AAA/pkg/logger"
)

// EvaluationService is the evaluation pipeline surface used by the HTTP layer
type EvaluationService interface {
	ComputeEvaluation(ctx context.Context, reportID string) (*evaluation.ComputeResponse, error)
	GetEvaluation(ctx context.Context, id string) (*contracts.Evaluation, error)
}

// EvaluationHandler handles evaluation endpoints
type EvaluationHandler struct {
	service EvaluationService
	logger  *logger.Logger
}

// NewEvaluationHandler creates a new evaluation handler
func NewEvaluationHandler(service EvaluationService, log *logger.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  log.Module("api.evaluation"),
	}
}

// ComputeRequest is the body of POST /api/evaluations
type ComputeRequest struct {
	ReportID string `json:"report_id" validate:"required"`
}

// Compute starts an evaluation of a report
// POST /api/evaluations
func (h *EvaluationHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	resp, err := h.service.ComputeEvaluation(r.Context(), req.ReportID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// Get returns an evaluation with its KPI rows
// GET /api/evaluations/{id}
func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.GetEvaluation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

// RankingService is the ranking and awards surface used by the HTTP layer
type RankingService interface {
	GetScorecardRanking(ctx context.Context, period string, limit int) ([]*contracts.Scorecard, error)
	RecomputePeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error)
	SelectAwards(ctx context.Context, period, category string) ([]*contracts.Award, error)
	ListAwards(ctx context.Context, period string) ([]*contracts.Award, error)
}

// RankingHandler handles scorecard ranking and award endpoints
// ⭐ SSOT: 랭킹 API 핸들러는 이 구조체에서만
type RankingHandler struct {
	service RankingService
	logger  *logger.Logger
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(service RankingService, log *logger.Logger) *RankingHandler {
	return &RankingHandler{
		service: service,
		logger:  log.Module("api.ranking"),
	}
}

// GetRanking returns the period's scorecards by rank
// GET /api/scorecards/ranking?period=2025-Q1&limit=100
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		respondError(w, http.StatusBadRequest, "'period' is required (YYYY-Qn)")
		return
	}
	limit, err := parseIntParam(q.Get("limit"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected integer)")
		return
	}

	cards, err := h.service.GetScorecardRanking(r.Context(), period, int(limit))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if cards == nil {
		cards = []*contracts.Scorecard{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period":     period,
		"count":      len(cards),
		"scorecards": cards,
	})
}

// Rerank recomputes the ranks of a period
// POST /api/scorecards/{period}/rerank
func (h *RankingHandler) Rerank(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	if _, _, err := contracts.PeriodRange(period); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	ranked, err := h.service.RecomputePeriod(r.Context(), period)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period":     period,
		"scorecards": len(ranked),
	})
}

// AwardRequest is the body of POST /api/awards
type AwardRequest struct {
	Period   string `json:"period" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// SelectAwards grants gold/silver/bronze for a category and period
// POST /api/awards
func (h *RankingHandler) SelectAwards(w http.ResponseWriter, r *http.Request) {
	var req AwardRequest
	if err := decodeBody(r, &req); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	awards, err := h.service.SelectAwards(r.Context(), req.Period, req.Category)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if awards == nil {
		awards = []*contracts.Award{}
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"period":   req.Period,
		"category": req.Category,
		"awards":   awards,
	})
}

// ListAwards returns the awards of a period
// GET /api/awards?period=2025-Q1
func (h *RankingHandler) ListAwards(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if _, _, err := contracts.PeriodRange(period); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	awards, err := h.service.ListAwards(r.Context(), period)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if awards == nil {
		awards = []*contracts.Award{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period": period,
		"awards": awards,
	})
}

package contracts

import (
	"fmt"
	"time"
)

// EvaluationStatus mirrors the job lifecycle shape
type EvaluationStatus string

const (
	EvaluationPending    EvaluationStatus = "pending"
	EvaluationProcessing EvaluationStatus = "processing"
	EvaluationCompleted  EvaluationStatus = "completed"
	EvaluationFailed     EvaluationStatus = "failed"
)

// IsTerminal reports whether the evaluation is finalized
func (s EvaluationStatus) IsTerminal() bool {
	return s == EvaluationCompleted || s == EvaluationFailed
}

// KPIType is one of the seven fixed scoring dimensions
// ⭐ SSOT: KPI 종류는 여기서만 정의
type KPIType string

const (
	KPITargetPriceAccuracy         KPIType = "target_price_accuracy"
	KPIPerformanceAccuracy         KPIType = "performance_accuracy"
	KPIInvestmentLogicValidity     KPIType = "investment_logic_validity"
	KPIRiskAnalysisAppropriateness KPIType = "risk_analysis_appropriateness"
	KPIReportFrequency             KPIType = "report_frequency"
	KPISNSAttention                KPIType = "sns_attention"
	KPIMediaFrequency              KPIType = "media_frequency"
)

// AllKPITypes returns the seven KPIs in canonical order
func AllKPITypes() []KPIType {
	return []KPIType{
		KPITargetPriceAccuracy,
		KPIPerformanceAccuracy,
		KPIInvestmentLogicValidity,
		KPIRiskAnalysisAppropriateness,
		KPIReportFrequency,
		KPISNSAttention,
		KPIMediaFrequency,
	}
}

// PredictionKind selects the accuracy denominator
type PredictionKind string

const (
	KindTargetPrice     PredictionKind = "target_price"
	KindRevenue         PredictionKind = "revenue"
	KindOperatingProfit PredictionKind = "operating_profit"
	KindNetProfit       PredictionKind = "net_profit"
	KindOther           PredictionKind = "other"
)

// IsFinancial reports revenue/profit kinds (error rate against actual)
func (k PredictionKind) IsFinancial() bool {
	return k == KindRevenue || k == KindOperatingProfit || k == KindNetProfit
}

// Report is a broker report authored by an analyst about one company
type Report struct {
	ID          string    `json:"id"`
	AnalystID   string    `json:"analyst_id"`
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`

	// 정성 평가 (문서 분석 결과), 없으면 nil
	LogicScore *float64 `json:"logic_score,omitempty"`
	RiskScore  *float64 `json:"risk_score,omitempty"`
}

// Prediction is one forecast extracted from a report
type Prediction struct {
	ID             string         `json:"id"`
	ReportID       string         `json:"report_id"`
	CompanyID      string         `json:"company_id"`
	Kind           PredictionKind `json:"kind"`
	PredictedValue float64        `json:"predicted_value"`
	Unit           string         `json:"unit"`
	Period         string         `json:"period"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// ActualResult is the observed value for a prediction (1:1)
type ActualResult struct {
	ID           string  `json:"id"`
	PredictionID string  `json:"prediction_id"`
	ActualValue  float64 `json:"actual_value"`
	Period       string  `json:"period"`
	Source       string  `json:"source"`
}

// PredictionOutcome pairs a prediction with its actual, if observed yet
type PredictionOutcome struct {
	Prediction Prediction
	Actual     *ActualResult
}

// PeriodInputs are the non-KPI stage scores for an analyst and period
type PeriodInputs struct {
	SNSMarket    *float64
	ExpertSurvey *float64
}

// EvaluationScore is one KPI's contribution to an evaluation
type EvaluationScore struct {
	EvaluationID string  `json:"evaluation_id"`
	KPIType      KPIType `json:"kpi_type"`
	Value        float64 `json:"score_value"`
	Weight       float64 `json:"weight"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// Evaluation is one scoring run over a report
type Evaluation struct {
	ID             string            `json:"id"`
	AnalystID      string            `json:"analyst_id"`
	ReportID       string            `json:"report_id"`
	CompanyID      string            `json:"company_id"`
	Period         string            `json:"period"`
	Status         EvaluationStatus  `json:"status"`
	AIQuantitative float64           `json:"ai_quantitative_score"`
	SNSMarket      float64           `json:"sns_market_score"`
	ExpertSurvey   float64           `json:"expert_survey_score"`
	FinalScore     float64           `json:"final_score"`
	Scores         []EvaluationScore `json:"scores,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// PeriodOf returns the quarter label ("2025-Q1") containing t
func PeriodOf(t time.Time) string {
	return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
}

// PeriodRange returns [start, end) of a quarter label
func PeriodRange(period string) (time.Time, time.Time, error) {
	var year, q int
	if _, err := fmt.Sscanf(period, "%d-Q%d", &year, &q); err != nil || q < 1 || q > 4 {
		return time.Time{}, time.Time{}, NewValidationError("period", fmt.Sprintf("invalid period %q, want YYYY-Qn", period))
	}
	start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, 0), nil
}

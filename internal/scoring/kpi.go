package scoring

import (
	"fmt"
	"math"

	"github.com/smsh73/AAA/internal/contracts"
)

// WeightTolerance is the allowed drift of Σweights from 1.0
const WeightTolerance = 1e-3

// KPIWeights maps every KPI to its weight
type KPIWeights map[contracts.KPIType]float64

// DefaultKPIWeights returns the fixed KPI weights
// ⭐ SSOT: KPI 가중치
func DefaultKPIWeights() KPIWeights {
	return KPIWeights{
		contracts.KPITargetPriceAccuracy:         0.25,
		contracts.KPIPerformanceAccuracy:         0.30,
		contracts.KPIInvestmentLogicValidity:     0.15,
		contracts.KPIRiskAnalysisAppropriateness: 0.10,
		contracts.KPIReportFrequency:             0.05,
		contracts.KPISNSAttention:                0.10,
		contracts.KPIMediaFrequency:              0.05,
	}
}

// Validate checks that every KPI has a weight in [0,1] and Σ = 1 ± WeightTolerance
func (w KPIWeights) Validate() error {
	sum := 0.0
	for _, k := range contracts.AllKPITypes() {
		v, ok := w[k]
		if !ok {
			return contracts.NewValidationError("kpi_weights", fmt.Sprintf("missing weight for %s", k))
		}
		if v < 0 || v > 1 || math.IsNaN(v) {
			return contracts.NewValidationError("kpi_weights", fmt.Sprintf("weight for %s out of [0,1]: %v", k, v))
		}
		sum += v
	}
	if len(w) != len(contracts.AllKPITypes()) {
		return contracts.NewValidationError("kpi_weights", "unknown KPI in weight set")
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return contracts.NewValidationError("kpi_weights", fmt.Sprintf("weights sum to %.6f, want 1.0", sum))
	}
	return nil
}

// KPIScores holds the KPI scores available for one evaluation
// 누락된 KPI는 키 자체가 없음 (0점과 구분)
type KPIScores map[contracts.KPIType]float64

// Aggregator folds KPI scores into the AI quantitative score
type Aggregator struct {
	weights KPIWeights
}

// NewAggregator creates an aggregator; weights are checked on every call
func NewAggregator(weights KPIWeights) *Aggregator {
	return &Aggregator{weights: weights}
}

// Aggregate returns Σ(score×weight) / Σ(weight of present KPIs)
// plus the per-KPI score rows in canonical order
func (a *Aggregator) Aggregate(scores KPIScores) (float64, []contracts.EvaluationScore, error) {
	if err := a.weights.Validate(); err != nil {
		return 0, nil, err
	}
	if len(scores) == 0 {
		return 0, nil, contracts.NewValidationError("kpi_scores", "no KPI scores available")
	}

	for k, v := range scores {
		if _, ok := a.weights[k]; !ok {
			return 0, nil, contracts.NewValidationError("kpi_scores", fmt.Sprintf("unknown KPI %q", k))
		}
		if err := checkRange(string(k), v); err != nil {
			return 0, nil, err
		}
	}

	var weighted, present float64
	rows := make([]contracts.EvaluationScore, 0, len(scores))
	for _, k := range contracts.AllKPITypes() {
		v, ok := scores[k]
		if !ok {
			continue
		}
		w := a.weights[k]
		weighted += v * w
		present += w
		rows = append(rows, contracts.EvaluationScore{KPIType: k, Value: v, Weight: w})
	}

	if present == 0 {
		return 0, nil, contracts.NewValidationError("kpi_scores", "present KPIs carry zero total weight")
	}
	return weighted / present, rows, nil
}

// MissingKPIs lists the KPIs absent from scores in canonical order
func MissingKPIs(scores KPIScores) []contracts.KPIType {
	var missing []contracts.KPIType
	for _, k := range contracts.AllKPITypes() {
		if _, ok := scores[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// FrequencyScore converts an activity count into a [0,100] score
func FrequencyScore(count int, pointsPerItem float64) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(100, float64(count)*pointsPerItem)
}

func checkRange(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return contracts.NewValidationError(field, fmt.Sprintf("score %v outside [0,100]", v))
	}
	return nil
}

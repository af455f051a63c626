package scoring

import (
	"math"

	"github.com/smsh73/AAA/internal/contracts"
)

// HitThreshold is the error rate (%) at or below which a prediction counts as a hit
const HitThreshold = 10.0

// Measurement is the accuracy of one prediction against its actual
type Measurement struct {
	PredictionID string
	Kind         contracts.PredictionKind
	Rate         float64 // target price: 괴리율, 실적: 오차율 (%)
	Signed       float64 // (actual - predicted) / actual × 100
	Accuracy     float64 // max(0, 100 - Rate)
	Hit          bool
}

// Measure scores one prediction
// 분모가 0이면 (false) 반환: 미채점
//   - target price: |a - p| / |p|  (예측가 기준 괴리율)
//   - revenue/profit: |a - p| / |a| (실적 기준 오차율)
func Measure(p contracts.Prediction, a contracts.ActualResult) (Measurement, bool) {
	predicted, actual := p.PredictedValue, a.ActualValue
	if actual == 0 || math.IsNaN(actual) || math.IsNaN(predicted) {
		return Measurement{}, false
	}

	var denom float64
	switch {
	case p.Kind == contracts.KindTargetPrice:
		denom = math.Abs(predicted)
	case p.Kind.IsFinancial():
		denom = math.Abs(actual)
	default:
		return Measurement{}, false
	}
	if denom == 0 {
		return Measurement{}, false
	}

	rate := math.Abs(actual-predicted) / denom * 100
	return Measurement{
		PredictionID: p.ID,
		Kind:         p.Kind,
		Rate:         rate,
		Signed:       (actual - predicted) / actual * 100,
		Accuracy:     math.Max(0, 100-rate),
		Hit:          rate <= HitThreshold,
	}, true
}

// Summary aggregates measurements of one kind group
// NoData = true 이면 나머지 값은 모두 0이며 KPI로 사용하지 않음
type Summary struct {
	N            int     `json:"n"`
	MAPE         float64 `json:"mape"`
	Bias         float64 `json:"bias"`
	HitRate      float64 `json:"hit_rate"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	NoData       bool    `json:"no_data"`
}

// Summarize computes MAPE, signed bias and hit rate over measurements
func Summarize(ms []Measurement) Summary {
	if len(ms) == 0 {
		return Summary{NoData: true}
	}

	var rateSum, signedSum, accSum float64
	hits := 0
	for _, m := range ms {
		rateSum += m.Rate
		signedSum += m.Signed
		accSum += m.Accuracy
		if m.Hit {
			hits++
		}
	}

	n := float64(len(ms))
	return Summary{
		N:            len(ms),
		MAPE:         rateSum / n,
		Bias:         signedSum / n,
		HitRate:      100 * float64(hits) / n,
		MeanAccuracy: accSum / n,
	}
}

// MeasureOutcomes scores every outcome whose kind passes include and that has an actual
func MeasureOutcomes(outcomes []contracts.PredictionOutcome, include func(contracts.PredictionKind) bool) []Measurement {
	var ms []Measurement
	for _, o := range outcomes {
		if o.Actual == nil || !include(o.Prediction.Kind) {
			continue
		}
		if m, ok := Measure(o.Prediction, *o.Actual); ok {
			ms = append(ms, m)
		}
	}
	return ms
}

// IsTargetPrice selects target-price predictions
func IsTargetPrice(k contracts.PredictionKind) bool { return k == contracts.KindTargetPrice }

// IsFinancial selects revenue/profit predictions
func IsFinancial(k contracts.PredictionKind) bool { return k.IsFinancial() }

package scoring

import (
	"fmt"
	"math"

	"github.com/smsh73/AAA/internal/contracts"
)

// StageWeights are the three-stage combination weights
type StageWeights struct {
	AIQuantitative float64
	SNSMarket      float64
	ExpertSurvey   float64
}

// DefaultStageWeights returns 0.4 / 0.3 / 0.3
// ⭐ SSOT: 3단계 통합 가중치
func DefaultStageWeights() StageWeights {
	return StageWeights{AIQuantitative: 0.40, SNSMarket: 0.30, ExpertSurvey: 0.30}
}

// Validate checks Σ = 1 ± WeightTolerance
func (w StageWeights) Validate() error {
	for _, v := range []float64{w.AIQuantitative, w.SNSMarket, w.ExpertSurvey} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return contracts.NewValidationError("stage_weights", fmt.Sprintf("weight %v out of [0,1]", v))
		}
	}
	sum := w.AIQuantitative + w.SNSMarket + w.ExpertSurvey
	if math.Abs(sum-1.0) > WeightTolerance {
		return contracts.NewValidationError("stage_weights", fmt.Sprintf("weights sum to %.6f, want 1.0", sum))
	}
	return nil
}

// StageScores are the three inputs to the final score
type StageScores struct {
	AIQuantitative float64
	SNSMarket      float64
	ExpertSurvey   float64
}

// Combine returns the final score rounded to 2 decimals
// 입력 범위 위반은 에러, 결과는 [0,100]으로 clamp
func Combine(s StageScores, w StageWeights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if err := checkRange("ai_quantitative_score", s.AIQuantitative); err != nil {
		return 0, err
	}
	if err := checkRange("sns_market_score", s.SNSMarket); err != nil {
		return 0, err
	}
	if err := checkRange("expert_survey_score", s.ExpertSurvey); err != nil {
		return 0, err
	}

	final := s.AIQuantitative*w.AIQuantitative +
		s.SNSMarket*w.SNSMarket +
		s.ExpertSurvey*w.ExpertSurvey

	return Round2(Clamp(final, 0, 100)), nil
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 rounds half away from zero to 2 decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

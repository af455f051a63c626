package scoring_test

import (
	"fmt"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/scoring"
)

// ExampleMeasure scores a target-price call against the observed price
func ExampleMeasure() {
	m, ok := scoring.Measure(
		contracts.Prediction{ID: "p1", Kind: contracts.KindTargetPrice, PredictedValue: 10000},
		contracts.ActualResult{PredictionID: "p1", ActualValue: 11000},
	)
	fmt.Printf("scored=%v rate=%.1f accuracy=%.1f hit=%v\n", ok, m.Rate, m.Accuracy, m.Hit)
	// Output:
	// scored=true rate=10.0 accuracy=90.0 hit=true
}

// ExampleCombine folds seven KPIs into the AI score, then into the final score
func ExampleCombine() {
	agg := scoring.NewAggregator(scoring.DefaultKPIWeights())
	ai, _, err := agg.Aggregate(scoring.KPIScores{
		contracts.KPITargetPriceAccuracy:         80,
		contracts.KPIPerformanceAccuracy:         85,
		contracts.KPIInvestmentLogicValidity:     75,
		contracts.KPIRiskAnalysisAppropriateness: 70,
		contracts.KPIReportFrequency:             90,
		contracts.KPISNSAttention:                65,
		contracts.KPIMediaFrequency:              60,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	final, err := scoring.Combine(scoring.StageScores{
		AIQuantitative: ai,
		SNSMarket:      72.5,
		ExpertSurvey:   80,
	}, scoring.DefaultStageWeights())
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("ai=%.2f final=%.2f\n", ai, final)
	// Output:
	// ai=77.75 final=76.85
}

package evaluation

import (
	"fmt"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/scoring"
)

const (
	reportPoints = 10.0 // 리포트 1건당
	signalPoints = 5.0  // SNS/미디어 언급 1건당
)

// Inputs are the raw facts an evaluation scores
type Inputs struct {
	Outcomes    []contracts.PredictionOutcome
	ReportCount int
	Signals     contracts.SignalCounts
	Logic       *float64
	Risk        *float64
}

// Breakdown is the KPI score set plus the reasoning behind each present KPI
type Breakdown struct {
	Scores      scoring.KPIScores
	Reasons     map[contracts.KPIType]string
	TargetPrice scoring.Summary
	Performance scoring.Summary
}

// BuildKPIs derives the KPI scores available from in
// 데이터가 없는 KPI는 0점이 아니라 누락으로 처리
func BuildKPIs(in Inputs) Breakdown {
	b := Breakdown{
		Scores:  make(scoring.KPIScores),
		Reasons: make(map[contracts.KPIType]string),
	}

	b.TargetPrice = scoring.Summarize(scoring.MeasureOutcomes(in.Outcomes, scoring.IsTargetPrice))
	if !b.TargetPrice.NoData {
		b.Scores[contracts.KPITargetPriceAccuracy] = b.TargetPrice.MeanAccuracy
		b.Reasons[contracts.KPITargetPriceAccuracy] = summaryReason(b.TargetPrice)
	}

	b.Performance = scoring.Summarize(scoring.MeasureOutcomes(in.Outcomes, scoring.IsFinancial))
	if !b.Performance.NoData {
		b.Scores[contracts.KPIPerformanceAccuracy] = b.Performance.MeanAccuracy
		b.Reasons[contracts.KPIPerformanceAccuracy] = summaryReason(b.Performance)
	}

	if in.Logic != nil {
		b.Scores[contracts.KPIInvestmentLogicValidity] = *in.Logic
		b.Reasons[contracts.KPIInvestmentLogicValidity] = "qualitative assessment"
	}
	if in.Risk != nil {
		b.Scores[contracts.KPIRiskAnalysisAppropriateness] = *in.Risk
		b.Reasons[contracts.KPIRiskAnalysisAppropriateness] = "qualitative assessment"
	}

	if in.ReportCount > 0 {
		b.Scores[contracts.KPIReportFrequency] = scoring.FrequencyScore(in.ReportCount, reportPoints)
		b.Reasons[contracts.KPIReportFrequency] = fmt.Sprintf("%d reports in period", in.ReportCount)
	}

	if in.Signals.Collected {
		b.Scores[contracts.KPISNSAttention] = scoring.FrequencyScore(in.Signals.SNSItems, signalPoints)
		b.Reasons[contracts.KPISNSAttention] = fmt.Sprintf("%d sns mentions", in.Signals.SNSItems)
		b.Scores[contracts.KPIMediaFrequency] = scoring.FrequencyScore(in.Signals.MediaItems, signalPoints)
		b.Reasons[contracts.KPIMediaFrequency] = fmt.Sprintf("%d media mentions", in.Signals.MediaItems)
	}

	return b
}

func summaryReason(s scoring.Summary) string {
	return fmt.Sprintf("n=%d mape=%.2f bias=%.2f hit_rate=%.1f", s.N, s.MAPE, s.Bias, s.HitRate)
}

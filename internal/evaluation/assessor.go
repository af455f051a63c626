package evaluation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

// Assessor produces the qualitative KPIs of a report; nil means unavailable
type Assessor interface {
	Assess(ctx context.Context, report *contracts.Report) (logic, risk *float64, err error)
}

// ReportAssessor prefers stored document-analysis scores and falls back to a text generator
type ReportAssessor struct {
	gen   contracts.TextGenerator
	model string
	log   *logger.Logger
}

// NewReportAssessor creates an assessor; gen may be nil
func NewReportAssessor(gen contracts.TextGenerator, model string, log *logger.Logger) *ReportAssessor {
	return &ReportAssessor{gen: gen, model: model, log: log.Module("assessor")}
}

const assessPrompt = `다음 증권사 리포트를 평가하세요.
제목: %s
종목: %s

두 항목을 0-100 점수로만 답하세요.
logic: <투자 논리 타당성>
risk: <리스크 분석 적절성>`

var scoreLine = regexp.MustCompile(`(?im)^\s*(logic|risk)\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)`)

func (a *ReportAssessor) Assess(ctx context.Context, report *contracts.Report) (*float64, *float64, error) {
	logic, risk := report.LogicScore, report.RiskScore
	if (logic != nil && risk != nil) || a.gen == nil {
		return logic, risk, nil
	}

	text, err := a.gen.GenerateText(ctx, a.model, fmt.Sprintf(assessPrompt, report.Title, report.CompanyID))
	if err != nil {
		// 생성 실패는 KPI 누락으로 처리
		a.log.WithError(err).WithField("report_id", report.ID).Warn("qualitative assessment unavailable")
		return logic, risk, nil
	}

	genLogic, genRisk := parseAssessment(text)
	if logic == nil {
		logic = genLogic
	}
	if risk == nil {
		risk = genRisk
	}
	return logic, risk, nil
}

// parseAssessment extracts "logic: N" / "risk: N" lines; values above 100 are dropped
func parseAssessment(text string) (logic, risk *float64) {
	for _, m := range scoreLine.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v > 100 {
			continue
		}
		if strings.EqualFold(m[1], "logic") {
			logic = &v
		} else {
			risk = &v
		}
	}
	return logic, risk
}

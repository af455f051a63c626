package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/scoring"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
)

// ScorecardSink materializes a completed evaluation and re-ranks its period
type ScorecardSink interface {
	UpsertScorecard(ctx context.Context, sc *contracts.Scorecard) (*contracts.Scorecard, error)
	RecomputePeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error)
}

// Config controls the evaluation pipeline
type Config struct {
	EstimatedDuration time.Duration
	Timeout           time.Duration
	KPIWeights        scoring.KPIWeights
	StageWeights      scoring.StageWeights
}

// ComputeResponse is returned immediately; scoring runs in the background
type ComputeResponse struct {
	EvaluationID          string                     `json:"evaluation_id"`
	Status                contracts.EvaluationStatus `json:"status"`
	EstimatedCompletionAt time.Time                  `json:"estimated_completion_at"`
}

// Service runs the report → KPI → final score → scorecard pipeline
// ⭐ SSOT: 평가 생성/실행은 이 서비스 경유
type Service struct {
	reports    contracts.ReportRepository
	evals      contracts.EvaluationRepository
	signals    contracts.UnitLogRepository
	coverage   contracts.CoverageRepository
	assessor   Assessor
	scorecards ScorecardSink
	aggregator *scoring.Aggregator
	cfg        Config
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the pipeline; assessor, coverage and scorecards may be nil
func NewService(
	reports contracts.ReportRepository,
	evals contracts.EvaluationRepository,
	signals contracts.UnitLogRepository,
	coverage contracts.CoverageRepository,
	assessor Assessor,
	scorecards ScorecardSink,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.KPIWeights == nil {
		cfg.KPIWeights = scoring.DefaultKPIWeights()
	}
	if cfg.StageWeights == (scoring.StageWeights{}) {
		cfg.StageWeights = scoring.DefaultStageWeights()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}

	base, cancel := context.WithCancel(context.Background())
	return &Service{
		reports:    reports,
		evals:      evals,
		signals:    signals,
		coverage:   coverage,
		assessor:   assessor,
		scorecards: scorecards,
		aggregator: scoring.NewAggregator(cfg.KPIWeights),
		cfg:        cfg,
		metrics:    m,
		log:        log.Module("evaluation"),
		now:        time.Now,
		base:       base,
		cancel:     cancel,
	}
}

// ComputeEvaluation creates a pending evaluation for reportID and scores it asynchronously
func (s *Service) ComputeEvaluation(ctx context.Context, reportID string) (*ComputeResponse, error) {
	if reportID == "" {
		return nil, contracts.NewValidationError("report_id", "report id is required")
	}
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ev := &contracts.Evaluation{
		ID:        uuid.NewString(),
		AnalystID: report.AnalystID,
		ReportID:  report.ID,
		CompanyID: report.CompanyID,
		Period:    contracts.PeriodOf(report.PublishedAt),
		Status:    contracts.EvaluationPending,
		CreatedAt: now,
	}
	if err := s.evals.CreateActive(ctx, ev); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"evaluation_id": ev.ID,
		"report_id":     reportID,
		"period":        ev.Period,
	}).Info("evaluation created")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Run(s.base, ev, report); err != nil {
			s.log.WithError(err).WithField("evaluation_id", ev.ID).Error("evaluation failed")
		}
	}()

	return &ComputeResponse{
		EvaluationID:          ev.ID,
		Status:                ev.Status,
		EstimatedCompletionAt: now.Add(s.cfg.EstimatedDuration),
	}, nil
}

// GetEvaluation returns an evaluation with its KPI rows
func (s *Service) GetEvaluation(ctx context.Context, id string) (*contracts.Evaluation, error) {
	return s.evals.Get(ctx, id)
}

// Run executes the pipeline for a created evaluation: processing → completed | failed
func (s *Service) Run(ctx context.Context, ev *contracts.Evaluation, report *contracts.Report) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := s.now()
	ev.Status = contracts.EvaluationProcessing
	ev.StartedAt = &started
	if ok, err := s.save(ctx, ev); err != nil {
		return s.fail(ev, err)
	} else if !ok {
		return nil
	}

	breakdown, err := s.score(ctx, ev, report)
	if err != nil {
		return s.fail(ev, err)
	}

	completed := s.now()
	ev.Status = contracts.EvaluationCompleted
	ev.CompletedAt = &completed
	if ok, err := s.save(ctx, ev); err != nil {
		return s.fail(ev, err)
	} else if !ok {
		return nil
	}
	s.metrics.EvaluationFinished(string(contracts.EvaluationCompleted))

	s.log.WithFields(map[string]interface{}{
		"evaluation_id": ev.ID,
		"final_score":   ev.FinalScore,
		"missing_kpis":  scoring.MissingKPIs(breakdown.Scores),
	}).Info("evaluation completed")

	// 스코어카드 실패는 평가 완료를 되돌리지 않음
	s.materialize(ctx, ev, breakdown)
	return nil
}

// score gathers inputs and fills the stage and final scores of ev
func (s *Service) score(ctx context.Context, ev *contracts.Evaluation, report *contracts.Report) (Breakdown, error) {
	from, to, err := contracts.PeriodRange(ev.Period)
	if err != nil {
		return Breakdown{}, err
	}

	var (
		in     Inputs
		period *contracts.PeriodInputs
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outcomes, err := s.reports.ListOutcomes(gctx, report.ID)
		if err != nil {
			return fmt.Errorf("list outcomes: %w", err)
		}
		in.Outcomes = outcomes
		return nil
	})
	g.Go(func() error {
		n, err := s.reports.CountReports(gctx, report.AnalystID, from, to)
		if err != nil {
			return fmt.Errorf("count reports: %w", err)
		}
		in.ReportCount = n
		return nil
	})
	g.Go(func() error {
		if s.signals == nil {
			return nil
		}
		counts, err := s.signals.CountSignals(gctx, report.AnalystID, report.CompanyID, from, to)
		if err != nil {
			return fmt.Errorf("count signals: %w", err)
		}
		in.Signals = counts
		return nil
	})
	g.Go(func() error {
		p, err := s.reports.GetPeriodInputs(gctx, report.AnalystID, ev.Period)
		if err != nil {
			return fmt.Errorf("period inputs: %w", err)
		}
		period = p
		return nil
	})
	g.Go(func() error {
		if s.assessor == nil {
			in.Logic, in.Risk = report.LogicScore, report.RiskScore
			return nil
		}
		logic, risk, err := s.assessor.Assess(gctx, report)
		if err != nil {
			return fmt.Errorf("assess report: %w", err)
		}
		in.Logic, in.Risk = logic, risk
		return nil
	})
	if err := g.Wait(); err != nil {
		return Breakdown{}, err
	}

	if period == nil {
		period = &contracts.PeriodInputs{}
	}

	breakdown := BuildKPIs(in)
	ai, rows, err := s.aggregator.Aggregate(breakdown.Scores)
	if err != nil {
		return Breakdown{}, err
	}
	for i := range rows {
		rows[i].EvaluationID = ev.ID
		rows[i].Reasoning = breakdown.Reasons[rows[i].KPIType]
	}

	stages := scoring.StageScores{
		AIQuantitative: ai,
		SNSMarket:      s.stageInput("sns_market", period.SNSMarket, ai, ev),
		ExpertSurvey:   s.stageInput("expert_survey", period.ExpertSurvey, ai, ev),
	}
	final, err := scoring.Combine(stages, s.cfg.StageWeights)
	if err != nil {
		return Breakdown{}, err
	}

	ev.AIQuantitative = scoring.Round2(ai)
	ev.SNSMarket = scoring.Round2(stages.SNSMarket)
	ev.ExpertSurvey = scoring.Round2(stages.ExpertSurvey)
	ev.FinalScore = final
	ev.Scores = rows
	return breakdown, nil
}

// stageInput substitutes the AI quantitative score for an unavailable stage
func (s *Service) stageInput(name string, v *float64, ai float64, ev *contracts.Evaluation) float64 {
	if v != nil {
		return *v
	}
	s.log.WithFields(map[string]interface{}{
		"evaluation_id": ev.ID,
		"analyst_id":    ev.AnalystID,
		"period":        ev.Period,
		"stage":         name,
	}).Warn("stage score unavailable, using ai quantitative score")
	return ai
}

// save reports false when the stored evaluation is already terminal
func (s *Service) save(ctx context.Context, ev *contracts.Evaluation) (bool, error) {
	err := s.evals.Save(ctx, ev)
	if contracts.IsState(err) {
		s.log.WithError(err).WithField("evaluation_id", ev.ID).Warn("evaluation already finalized")
		return false, nil
	}
	return err == nil, err
}

func (s *Service) fail(ev *contracts.Evaluation, cause error) error {
	// 원래 ctx가 만료됐을 수 있으므로 별도 ctx로 기록
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.markFailed(ctx, ev, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// markFailed reports whether ev moved to failed
func (s *Service) markFailed(ctx context.Context, ev *contracts.Evaluation, message string) (bool, error) {
	completed := s.now()
	ev.Status = contracts.EvaluationFailed
	ev.ErrorMessage = message
	ev.CompletedAt = &completed
	ok, err := s.save(ctx, ev)
	if ok {
		s.metrics.EvaluationFinished(string(contracts.EvaluationFailed))
	}
	return ok, err
}

// SweepStale fails evaluations left pending or processing longer than the pipeline timeout
// 프로세스가 죽으면 Run이 끝나지 않아 같은 리포트의 새 평가가 영구히 막힘
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	stale, err := s.evals.ListStale(ctx, s.now().Add(-s.cfg.Timeout))
	if err != nil {
		return 0, fmt.Errorf("list stale evaluations: %w", err)
	}

	failed := 0
	for _, ev := range stale {
		msg := fmt.Sprintf("abandoned while %s for over %s", ev.Status, s.cfg.Timeout)
		ok, err := s.markFailed(ctx, ev, msg)
		if err != nil {
			s.log.WithError(err).WithField("evaluation_id", ev.ID).Warn("stale evaluation sweep failed")
			continue
		}
		if ok {
			failed++
		}
	}

	if failed > 0 {
		s.log.WithFields(map[string]interface{}{
			"failed":  failed,
			"timeout": s.cfg.Timeout.String(),
		}).Info("stale evaluation sweep")
	}
	return failed, nil
}

func (s *Service) materialize(ctx context.Context, ev *contracts.Evaluation, b Breakdown) {
	if s.scorecards == nil {
		return
	}
	log := s.log.WithField("evaluation_id", ev.ID)

	kpis := make(map[contracts.KPIType]float64, len(b.Scores))
	for k, v := range b.Scores {
		kpis[k] = scoring.Round2(v)
	}

	sc := &contracts.Scorecard{
		AnalystID:    ev.AnalystID,
		CompanyID:    ev.CompanyID,
		Period:       ev.Period,
		Sector:       s.sectorOf(ctx, ev.AnalystID, ev.CompanyID),
		FinalScore:   ev.FinalScore,
		KPIScores:    kpis,
		EvaluationID: ev.ID,
	}
	if _, err := s.scorecards.UpsertScorecard(ctx, sc); err != nil {
		log.WithError(err).Error("scorecard upsert failed")
		return
	}
	if _, err := s.scorecards.RecomputePeriod(ctx, ev.Period); err != nil {
		log.WithError(err).Error("period re-rank failed")
	}
}

func (s *Service) sectorOf(ctx context.Context, analystID, companyID string) string {
	if s.coverage == nil {
		return ""
	}
	targets, err := s.coverage.ListCoverage(ctx, analystID)
	if err != nil {
		s.log.WithError(err).Debug("coverage lookup failed")
		return ""
	}
	for _, t := range targets {
		if t.CompanyID == companyID {
			return t.Sector
		}
	}
	return ""
}

// Wait blocks until background evaluations return
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight evaluations and waits for them
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/ranking"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
)

type fakeSignals struct {
	contracts.UnitLogRepository
	counts contracts.SignalCounts
}

func (f fakeSignals) CountSignals(ctx context.Context, analystID, companyID string, from, to time.Time) (contracts.SignalCounts, error) {
	return f.counts, nil
}

type fakeCoverage map[string]string // company → sector

func (f fakeCoverage) ListCoverage(ctx context.Context, analystID string) ([]contracts.Target, error) {
	var out []contracts.Target
	for company, sector := range f {
		out = append(out, contracts.Target{CompanyID: company, Sector: sector})
	}
	return out, nil
}

type failingSink struct{ calls int }

func (f *failingSink) UpsertScorecard(ctx context.Context, sc *contracts.Scorecard) (*contracts.Scorecard, error) {
	f.calls++
	return nil, errors.New("scorecards table locked")
}

func (f *failingSink) RecomputePeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error) {
	return nil, nil
}

var published = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *MemoryStore
	ranks   *ranking.Service
	rankDB  *ranking.MemoryStore
	svc     *Service
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, sink ScorecardSink) *fixture {
	t.Helper()
	store := NewMemoryStore()
	rankDB := ranking.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	ranks := ranking.NewService(rankDB, rankDB, nil, logger.Nop(), m)
	if sink == nil {
		sink = ranks
	}

	signals := fakeSignals{counts: contracts.SignalCounts{SNSItems: 4, MediaItems: 1, Collected: true}}
	svc := NewService(store, store, signals, fakeCoverage{"c-005930": "반도체"}, nil, sink,
		Config{EstimatedDuration: time.Hour, Timeout: time.Minute}, logger.Nop(), m)
	t.Cleanup(svc.Close)

	return &fixture{store: store, ranks: ranks, rankDB: rankDB, svc: svc, metrics: m}
}

func seedReport(store *MemoryStore, id string, logic *float64) {
	store.AddReport(&contracts.Report{
		ID: id, AnalystID: "analyst-1", CompanyID: "c-005930", Title: "삼성전자 1Q 리뷰",
		PublishedAt: published, LogicScore: logic,
	},
		outcome(id+"-tp", contracts.KindTargetPrice, 10000, ptr(11000)),
		outcome(id+"-rev", contracts.KindRevenue, 100, ptr(80)),
		outcome(id+"-other", contracts.KindOther, 1, ptr(1)),
		outcome(id+"-pending", contracts.KindNetProfit, 10, nil),
	)
}

func TestComputeEvaluation_Pipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedReport(f.store, "r1", ptr(70))
	f.store.AddReport(&contracts.Report{ID: "r0", AnalystID: "analyst-1", CompanyID: "c-000660", PublishedAt: published.AddDate(0, 0, -20)})
	f.store.AddReport(&contracts.Report{ID: "r-old", AnalystID: "analyst-1", CompanyID: "c-000660", PublishedAt: published.AddDate(-1, 0, 0)})
	f.store.SetPeriodInputs("analyst-1", "2025-Q1", contracts.PeriodInputs{SNSMarket: ptr(60)})

	resp, err := f.svc.ComputeEvaluation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, contracts.EvaluationPending, resp.Status)
	f.svc.Wait()

	ev, err := f.svc.GetEvaluation(ctx, resp.EvaluationID)
	require.NoError(t, err)
	require.Equal(t, contracts.EvaluationCompleted, ev.Status, ev.ErrorMessage)
	assert.Equal(t, "2025-Q1", ev.Period)

	// tp 90, perf 75, logic 70, freq 20, sns 20, media 5 / risk 누락
	// ai = 58.75 / 0.90
	assert.Equal(t, 65.28, ev.AIQuantitative)
	assert.Equal(t, 60.0, ev.SNSMarket)
	assert.Equal(t, 65.28, ev.ExpertSurvey, "missing stage falls back to ai score")
	assert.Equal(t, 63.69, ev.FinalScore)
	require.Len(t, ev.Scores, 6)
	assert.Equal(t, contracts.KPITargetPriceAccuracy, ev.Scores[0].KPIType)
	for _, s := range ev.Scores {
		assert.Equal(t, ev.ID, s.EvaluationID)
		assert.NotEqual(t, contracts.KPIRiskAnalysisAppropriateness, s.KPIType)
	}
	assert.NotNil(t, ev.StartedAt)
	assert.NotNil(t, ev.CompletedAt)

	cards, err := f.rankDB.ListByPeriod(ctx, "2025-Q1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 63.69, cards[0].FinalScore)
	assert.Equal(t, 1, cards[0].Rank)
	assert.Equal(t, "반도체", cards[0].Sector)
	assert.Equal(t, ev.ID, cards[0].EvaluationID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("completed")))
}

func TestComputeEvaluation_Deterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedReport(f.store, "r1", ptr(70))

	var finals []float64
	for i := 0; i < 2; i++ {
		resp, err := f.svc.ComputeEvaluation(ctx, "r1")
		require.NoError(t, err)
		f.svc.Wait()

		ev, err := f.svc.GetEvaluation(ctx, resp.EvaluationID)
		require.NoError(t, err)
		require.Equal(t, contracts.EvaluationCompleted, ev.Status)
		finals = append(finals, ev.FinalScore)
	}
	assert.Equal(t, finals[0], finals[1])

	cards, _ := f.rankDB.ListByPeriod(ctx, "2025-Q1")
	assert.Len(t, cards, 1, "same analyst, period and company share one scorecard")
}

func TestComputeEvaluation_OneActivePerReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedReport(f.store, "r1", nil)

	require.NoError(t, f.store.CreateActive(ctx, &contracts.Evaluation{
		ID: "busy", ReportID: "r1", Status: contracts.EvaluationProcessing,
	}))

	_, err := f.svc.ComputeEvaluation(ctx, "r1")
	assert.ErrorIs(t, err, contracts.ErrActiveEvaluation)
}

func TestComputeEvaluation_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.ComputeEvaluation(ctx, "")
	assert.True(t, contracts.IsValidation(err))

	_, err = f.svc.ComputeEvaluation(ctx, "missing")
	assert.True(t, contracts.IsNotFound(err))
}

func TestComputeEvaluation_OutOfRangeKPIFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedReport(f.store, "r1", ptr(150))

	resp, err := f.svc.ComputeEvaluation(ctx, "r1")
	require.NoError(t, err)
	f.svc.Wait()

	ev, err := f.svc.GetEvaluation(ctx, resp.EvaluationID)
	require.NoError(t, err)
	assert.Equal(t, contracts.EvaluationFailed, ev.Status)
	assert.Contains(t, ev.ErrorMessage, "outside [0,100]")
	assert.Zero(t, ev.FinalScore)

	cards, _ := f.rankDB.ListByPeriod(ctx, "2025-Q1")
	assert.Empty(t, cards)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("failed")))

	// 실패 후에는 새 평가 허용
	seedReport(f.store, "r1", ptr(50))
	_, err = f.svc.ComputeEvaluation(ctx, "r1")
	assert.NoError(t, err)
	f.svc.Wait()
}

func TestComputeEvaluation_ScorecardFailureKeepsCompleted(t *testing.T) {
	ctx := context.Background()
	sink := &failingSink{}
	f := newFixture(t, sink)
	seedReport(f.store, "r1", ptr(70))

	resp, err := f.svc.ComputeEvaluation(ctx, "r1")
	require.NoError(t, err)
	f.svc.Wait()

	ev, err := f.svc.GetEvaluation(ctx, resp.EvaluationID)
	require.NoError(t, err)
	assert.Equal(t, contracts.EvaluationCompleted, ev.Status)
	assert.Equal(t, 1, sink.calls)
}

func TestRun_TerminalEvaluationNotOverwritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedReport(f.store, "r1", ptr(70))
	report, err := f.store.GetReport(ctx, "r1")
	require.NoError(t, err)

	ev := &contracts.Evaluation{ID: "e1", AnalystID: "analyst-1", ReportID: "r1", CompanyID: "c-005930",
		Period: "2025-Q1", Status: contracts.EvaluationFailed, ErrorMessage: "operator"}
	require.NoError(t, f.store.CreateActive(ctx, ev))

	require.NoError(t, f.svc.Run(ctx, &contracts.Evaluation{
		ID: "e1", AnalystID: "analyst-1", ReportID: "r1", CompanyID: "c-005930", Period: "2025-Q1",
	}, report))

	stored, err := f.store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, contracts.EvaluationFailed, stored.Status)
	assert.Equal(t, "operator", stored.ErrorMessage)
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	seedReport(f.store, "r1", ptr(70))
	seedReport(f.store, "r2", ptr(70))
	seedReport(f.store, "r3", ptr(70))

	old := now.Add(-2 * time.Hour)
	for _, ev := range []*contracts.Evaluation{
		{ID: "stuck-pending", ReportID: "r1", Status: contracts.EvaluationPending, CreatedAt: old},
		{ID: "stuck-processing", ReportID: "r2", Status: contracts.EvaluationProcessing, CreatedAt: old, StartedAt: &old},
		{ID: "fresh", ReportID: "r3", Status: contracts.EvaluationProcessing, CreatedAt: now.Add(-10 * time.Second)},
		{ID: "done", ReportID: "r4", Status: contracts.EvaluationCompleted, CreatedAt: old, FinalScore: 70},
	} {
		require.NoError(t, f.store.CreateActive(ctx, ev))
	}

	n, err := f.svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tests := []struct {
		id   string
		want contracts.EvaluationStatus
	}{
		{"stuck-pending", contracts.EvaluationFailed},
		{"stuck-processing", contracts.EvaluationFailed},
		{"fresh", contracts.EvaluationProcessing},
		{"done", contracts.EvaluationCompleted},
	}
	for _, tt := range tests {
		ev, err := f.store.Get(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ev.Status, tt.id)
	}

	stuck, err := f.store.Get(ctx, "stuck-processing")
	require.NoError(t, err)
	assert.Contains(t, stuck.ErrorMessage, "abandoned while processing")
	require.NotNil(t, stuck.CompletedAt)
	assert.Equal(t, now, *stuck.CompletedAt)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("failed")))

	// 점유가 풀린 리포트는 다시 평가 가능, 진행 중인 리포트는 여전히 거절
	_, err = f.svc.ComputeEvaluation(ctx, "r1")
	assert.NoError(t, err)
	_, err = f.svc.ComputeEvaluation(ctx, "r3")
	assert.ErrorIs(t, err, contracts.ErrActiveEvaluation)
	f.svc.Wait()

	// 두 번째 sweep은 이미 실패 처리된 행을 건드리지 않음
	n, err = f.svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

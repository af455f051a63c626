package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/internal/contracts"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRepository_GetReportNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM reports").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetReport(context.Background(), "missing")
	assert.True(t, contracts.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListOutcomes(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM predictions").
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "report_id", "company_id", "kind", "predicted_value", "unit", "period", "reasoning",
			"a_id", "actual_value", "a_period", "source",
		}).
			AddRow("p1", "r1", "c1", "target_price", 10000.0, "KRW", "2025-Q1", "", "a1", 11000.0, "2025-Q1", "naver").
			AddRow("p2", "r1", "c1", "revenue", 100.0, "억원", "2025-Q1", "", nil, nil, nil, nil))

	outs, err := repo.ListOutcomes(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, contracts.KindTargetPrice, outs[0].Prediction.Kind)
	require.NotNil(t, outs[0].Actual)
	assert.Equal(t, 11000.0, outs[0].Actual.ActualValue)
	assert.Equal(t, "naver", outs[0].Actual.Source)
	assert.Nil(t, outs[1].Actual, "unobserved prediction has no actual")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateActiveUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	ev := &contracts.Evaluation{ID: "e2", AnalystID: "a1", ReportID: "r1", CompanyID: "c1",
		Period: "2025-Q1", Status: contracts.EvaluationPending, CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO evaluations").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "evaluations_one_active"})

	err := repo.CreateActive(context.Background(), ev)
	assert.ErrorIs(t, err, contracts.ErrActiveEvaluation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save(t *testing.T) {
	started := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ev := &contracts.Evaluation{
		ID: "e1", Status: contracts.EvaluationCompleted, AIQuantitative: 65.28, SNSMarket: 60,
		ExpertSurvey: 65.28, FinalScore: 63.69, StartedAt: &started, CompletedAt: &started,
		Scores: []contracts.EvaluationScore{
			{EvaluationID: "e1", KPIType: contracts.KPITargetPriceAccuracy, Value: 90, Weight: 0.25, Reasoning: "1 predictions"},
			{EvaluationID: "e1", KPIType: contracts.KPIReportFrequency, Value: 20, Weight: 0.05},
		},
	}

	t.Run("writes row and scores", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE evaluations SET").
			WithArgs("e1", "completed", 65.28, 60.0, 65.28, 63.69, "", &started, &started).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM evaluation_scores").WithArgs("e1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO evaluation_scores").
			WithArgs("e1", "target_price_accuracy", 90.0, 0.25, "1 predictions").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO evaluation_scores").
			WithArgs("e1", "report_frequency", 20.0, 0.05, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Save(context.Background(), ev))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal row yields state error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE evaluations SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT status FROM evaluations").WithArgs("e1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("failed"))
		mock.ExpectRollback()

		err := repo.Save(context.Background(), ev)
		assert.True(t, contracts.IsState(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown row yields not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE evaluations SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT status FROM evaluations").WithArgs("e1").WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := repo.Save(context.Background(), ev)
		assert.True(t, contracts.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListStale(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)
	created := cutoff.Add(-time.Hour)

	mock.ExpectQuery("status IN \\('pending', 'processing'\\) AND created_at < \\$1").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "analyst_id", "report_id", "company_id", "period", "status", "created_at", "started_at",
		}).
			AddRow("e1", "a1", "r1", "c1", "2025-Q1", "processing", created, &created).
			AddRow("e2", "a1", "r2", "c1", "2025-Q1", "pending", created, nil))

	evs, err := repo.ListStale(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, contracts.EvaluationProcessing, evs[0].Status)
	require.NotNil(t, evs[0].StartedAt)
	assert.Equal(t, created, *evs[0].StartedAt)
	assert.Equal(t, contracts.EvaluationPending, evs[1].Status)
	assert.Nil(t, evs[1].StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

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

func TestRepository_UpsertReturnsStoredIdentity(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	sc := &contracts.Scorecard{
		ID:         "new-id",
		AnalystID:  "a1",
		CompanyID:  "c1",
		Period:     "2025-Q1",
		Sector:     "IT",
		FinalScore: 77.05,
		KPIScores:  map[contracts.KPIType]float64{contracts.KPITargetPriceAccuracy: 80},
		UpdatedAt:  updated,
	}

	mock.ExpectQuery("INSERT INTO scorecards").
		WithArgs("new-id", "a1", "c1", "2025-Q1", "IT", 77.05, pgxmock.AnyArg(), "", updated).
		WillReturnRows(pgxmock.NewRows([]string{"id", "ranking", "created_at", "updated_at"}).
			AddRow("existing-id", 3, created, updated))

	stored, err := repo.Upsert(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "existing-id", stored.ID)
	assert.Equal(t, 3, stored.Rank)
	assert.Equal(t, created, stored.CreatedAt)
	assert.Equal(t, "new-id", sc.ID, "caller's value is not mutated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListByPeriod(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM scorecards").
		WithArgs("2025-Q1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "analyst_id", "company_id", "period", "sector", "final_score", "ranking",
			"kpi_scores", "evaluation_id", "created_at", "updated_at",
		}).
			AddRow("s1", "a1", "c1", "2025-Q1", "IT", 90.0, 1, []byte(`{"report_frequency":50}`), "e1", ts, ts).
			AddRow("s2", "a2", "c1", "2025-Q1", "방산", 80.0, 0, []byte(`{}`), "", ts, ts))

	cards, err := repo.ListByPeriod(context.Background(), "2025-Q1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, 50.0, cards[0].KPIScores[contracts.KPIReportFrequency])
	assert.Equal(t, 0, cards[1].Rank)
	assert.Empty(t, cards[1].KPIScores)
}

func TestRepository_ReplaceAwards(t *testing.T) {
	now := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	awards := []*contracts.Award{
		{ID: "w1", ScorecardID: "s1", AnalystID: "a1", Category: "AI", Period: "2025-Q1", Type: contracts.AwardGold, Rank: 1, FinalScore: 90, CreatedAt: now},
		{ID: "w2", ScorecardID: "s2", AnalystID: "a2", Category: "AI", Period: "2025-Q1", Type: contracts.AwardSilver, Rank: 2, FinalScore: 80, CreatedAt: now},
	}

	t.Run("commits delete and inserts", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM awards").WithArgs("AI", "2025-Q1").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		for _, a := range awards {
			mock.ExpectExec("INSERT INTO awards").
				WithArgs(a.ID, a.ScorecardID, a.AnalystID, "AI", "2025-Q1", string(a.Type), a.Rank, a.FinalScore, now).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, repo.ReplaceAwards(context.Background(), "AI", "2025-Q1", awards))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on insert failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM awards").WithArgs("AI", "2025-Q1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO awards").WillReturnError(errors.New("unique violation"))
		mock.ExpectRollback()

		err := repo.ReplaceAwards(context.Background(), "AI", "2025-Q1", awards)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert award")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

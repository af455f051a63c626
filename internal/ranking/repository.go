package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/database"
)

// Repository is the Postgres scorecard and award store
type Repository struct {
	db database.DBTX
}

// NewRepository creates a Postgres-backed store
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Upsert inserts or updates the card for (analyst, period, company)
// ranking은 건드리지 않음 (재순위 산정 전용)
func (r *Repository) Upsert(ctx context.Context, sc *contracts.Scorecard) (*contracts.Scorecard, error) {
	kpis, err := json.Marshal(sc.KPIScores)
	if err != nil {
		return nil, fmt.Errorf("marshal kpi scores: %w", err)
	}

	query := `
		INSERT INTO scorecards
			(id, analyst_id, company_id, period, sector, final_score, kpi_scores, evaluation_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (analyst_id, period, company_id) DO UPDATE SET
			sector        = EXCLUDED.sector,
			final_score   = EXCLUDED.final_score,
			kpi_scores    = EXCLUDED.kpi_scores,
			evaluation_id = EXCLUDED.evaluation_id,
			updated_at    = EXCLUDED.updated_at
		RETURNING id, COALESCE(ranking, 0), created_at, updated_at`

	out := *sc
	err = r.db.QueryRow(ctx, query,
		sc.ID, sc.AnalystID, sc.CompanyID, sc.Period, sc.Sector, sc.FinalScore, kpis,
		sc.EvaluationID, sc.UpdatedAt,
	).Scan(&out.ID, &out.Rank, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert scorecard: %w", err)
	}
	return &out, nil
}

func (r *Repository) ListByPeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error) {
	query := `
		SELECT id, analyst_id, company_id, period, sector, final_score, COALESCE(ranking, 0),
		       kpi_scores, COALESCE(evaluation_id, ''), created_at, updated_at
		FROM scorecards
		WHERE period = $1
		ORDER BY ranking NULLS LAST, id`

	rows, err := r.db.Query(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("list scorecards: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Scorecard
	for rows.Next() {
		var (
			sc   contracts.Scorecard
			kpis []byte
		)
		if err := rows.Scan(&sc.ID, &sc.AnalystID, &sc.CompanyID, &sc.Period, &sc.Sector,
			&sc.FinalScore, &sc.Rank, &kpis, &sc.EvaluationID, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scorecard: %w", err)
		}
		sc.KPIScores = make(map[contracts.KPIType]float64)
		if len(kpis) > 0 {
			if err := json.Unmarshal(kpis, &sc.KPIScores); err != nil {
				return nil, fmt.Errorf("unmarshal kpi scores: %w", err)
			}
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}

// UpdateRanks writes every rank of a period in one transaction
func (r *Repository) UpdateRanks(ctx context.Context, period string, ranks map[string]int) error {
	ids := make([]string, 0, len(ranks))
	for id := range ranks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rank update: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE scorecards SET ranking = $1 WHERE id = $2 AND period = $3`, ranks[id], id, period)
	}

	br := tx.SendBatch(ctx, batch)
	for range ids {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("update rank: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close rank batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rank update: %w", err)
	}
	return nil
}

func (r *Repository) Periods(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT period FROM scorecards ORDER BY period`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceAwards swaps a category+period award set atomically
func (r *Repository) ReplaceAwards(ctx context.Context, category, period string, awards []*contracts.Award) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin award replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM awards WHERE category = $1 AND period = $2`, category, period); err != nil {
		return fmt.Errorf("delete awards: %w", err)
	}

	for _, a := range awards {
		_, err := tx.Exec(ctx, `
			INSERT INTO awards
				(id, scorecard_id, analyst_id, category, period, award_type, rank, final_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.ScorecardID, a.AnalystID, a.Category, a.Period, string(a.Type), a.Rank,
			a.FinalScore, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert award: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit award replace: %w", err)
	}
	return nil
}

func (r *Repository) ListAwards(ctx context.Context, period string) ([]*contracts.Award, error) {
	query := `
		SELECT id, scorecard_id, analyst_id, category, period, award_type, rank, final_score, created_at
		FROM awards
		WHERE period = $1
		ORDER BY category, rank`

	rows, err := r.db.Query(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Award
	for rows.Next() {
		var (
			a         contracts.Award
			awardType string
		)
		if err := rows.Scan(&a.ID, &a.ScorecardID, &a.AnalystID, &a.Category, &a.Period,
			&awardType, &a.Rank, &a.FinalScore, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		a.Type = contracts.AwardType(awardType)
		out = append(out, &a)
	}
	return out, rows.Err()
}

package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/database"
)

const uniqueViolation = "23505"

// Repository is the Postgres report and evaluation store
type Repository struct {
	db database.DBTX
}

// NewRepository creates a Postgres-backed store
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetReport(ctx context.Context, id string) (*contracts.Report, error) {
	query := `
		SELECT id, analyst_id, company_id, title, published_at, logic_score, risk_score
		FROM reports
		WHERE id = $1`

	var rep contracts.Report
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rep.ID, &rep.AnalystID, &rep.CompanyID, &rep.Title, &rep.PublishedAt,
		&rep.LogicScore, &rep.RiskScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "report", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return &rep, nil
}

func (r *Repository) CountReports(ctx context.Context, analystID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE analyst_id = $1 AND published_at >= $2 AND published_at < $3`,
		analystID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// ListOutcomes returns a report's predictions with their actuals (nil if not yet observed)
func (r *Repository) ListOutcomes(ctx context.Context, reportID string) ([]contracts.PredictionOutcome, error) {
	query := `
		SELECT p.id, p.report_id, p.company_id, p.kind, p.predicted_value, p.unit, p.period,
		       COALESCE(p.reasoning, ''),
		       a.id, a.actual_value, a.period, a.source
		FROM predictions p
		LEFT JOIN actual_results a ON a.prediction_id = p.id
		WHERE p.report_id = $1
		ORDER BY p.id`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []contracts.PredictionOutcome
	for rows.Next() {
		var (
			p        contracts.Prediction
			kind     string
			actualID *string
			value    *float64
			period   *string
			source   *string
		)
		if err := rows.Scan(&p.ID, &p.ReportID, &p.CompanyID, &kind, &p.PredictedValue, &p.Unit,
			&p.Period, &p.Reasoning, &actualID, &value, &period, &source); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		p.Kind = contracts.PredictionKind(kind)

		o := contracts.PredictionOutcome{Prediction: p}
		if actualID != nil && value != nil {
			o.Actual = &contracts.ActualResult{
				ID:           *actualID,
				PredictionID: p.ID,
				ActualValue:  *value,
				Period:       deref(period),
				Source:       deref(source),
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Repository) GetPeriodInputs(ctx context.Context, analystID, period string) (*contracts.PeriodInputs, error) {
	var in contracts.PeriodInputs
	err := r.db.QueryRow(ctx,
		`SELECT sns_market_score, expert_survey_score FROM analyst_period_inputs WHERE analyst_id = $1 AND period = $2`,
		analystID, period,
	).Scan(&in.SNSMarket, &in.ExpertSurvey)
	if errors.Is(err, pgx.ErrNoRows) {
		return &in, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get period inputs: %w", err)
	}
	return &in, nil
}

// CreateActive inserts a pending evaluation; the partial unique index enforces one active per report
func (r *Repository) CreateActive(ctx context.Context, ev *contracts.Evaluation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO evaluations (id, analyst_id, report_id, company_id, period, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.AnalystID, ev.ReportID, ev.CompanyID, ev.Period, string(ev.Status), ev.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return contracts.ErrActiveEvaluation
	}
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*contracts.Evaluation, error) {
	query := `
		SELECT id, analyst_id, report_id, company_id, period, status,
		       COALESCE(ai_quantitative_score, 0), COALESCE(sns_market_score, 0),
		       COALESCE(expert_survey_score, 0), COALESCE(final_score, 0),
		       COALESCE(error_message, ''), created_at, started_at, completed_at
		FROM evaluations
		WHERE id = $1`

	var (
		ev     contracts.Evaluation
		status string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ev.ID, &ev.AnalystID, &ev.ReportID, &ev.CompanyID, &ev.Period, &status,
		&ev.AIQuantitative, &ev.SNSMarket, &ev.ExpertSurvey, &ev.FinalScore,
		&ev.ErrorMessage, &ev.CreatedAt, &ev.StartedAt, &ev.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "evaluation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	ev.Status = contracts.EvaluationStatus(status)

	rows, err := r.db.Query(ctx,
		`SELECT kpi_type, score_value, weight, COALESCE(reasoning, '') FROM evaluation_scores WHERE evaluation_id = $1 ORDER BY id`,
		id)
	if err != nil {
		return nil, fmt.Errorf("list evaluation scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s   contracts.EvaluationScore
			kpi string
		)
		if err := rows.Scan(&kpi, &s.Value, &s.Weight, &s.Reasoning); err != nil {
			return nil, fmt.Errorf("scan evaluation score: %w", err)
		}
		s.EvaluationID = id
		s.KPIType = contracts.KPIType(kpi)
		ev.Scores = append(ev.Scores, s)
	}
	return &ev, rows.Err()
}

// Save writes status, stage scores and KPI rows in one transaction
// 저장된 행이 이미 종료 상태면 StateError
func (r *Repository) Save(ctx context.Context, ev *contracts.Evaluation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin evaluation save: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE evaluations SET
			status = $2,
			ai_quantitative_score = $3,
			sns_market_score = $4,
			expert_survey_score = $5,
			final_score = $6,
			error_message = NULLIF($7, ''),
			started_at = $8,
			completed_at = $9
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		ev.ID, string(ev.Status), ev.AIQuantitative, ev.SNSMarket, ev.ExpertSurvey, ev.FinalScore,
		ev.ErrorMessage, ev.StartedAt, ev.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update evaluation %s: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM evaluations WHERE id = $1`, ev.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return &contracts.NotFoundError{Kind: "evaluation", ID: ev.ID}
		}
		if err != nil {
			return fmt.Errorf("read evaluation status: %w", err)
		}
		return &contracts.StateError{Kind: "evaluation", ID: ev.ID, Status: status}
	}

	if len(ev.Scores) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM evaluation_scores WHERE evaluation_id = $1`, ev.ID); err != nil {
			return fmt.Errorf("clear evaluation scores: %w", err)
		}
		for _, s := range ev.Scores {
			if _, err := tx.Exec(ctx, `
				INSERT INTO evaluation_scores (evaluation_id, kpi_type, score_value, weight, reasoning)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
				ev.ID, string(s.KPIType), s.Value, s.Weight, s.Reasoning,
			); err != nil {
				return fmt.Errorf("insert evaluation score: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit evaluation save: %w", err)
	}
	return nil
}

// ListStale returns active evaluations older than before
// 크래시로 남은 행이 uq_evaluations_active_report 를 계속 점유하지 않도록 sweep 에서 사용
func (r *Repository) ListStale(ctx context.Context, before time.Time) ([]*contracts.Evaluation, error) {
	query := `
		SELECT id, analyst_id, report_id, company_id, period, status, created_at, started_at
		FROM evaluations
		WHERE status IN ('pending', 'processing') AND created_at < $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("list stale evaluations: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Evaluation
	for rows.Next() {
		var (
			ev     contracts.Evaluation
			status string
		)
		if err := rows.Scan(&ev.ID, &ev.AnalystID, &ev.ReportID, &ev.CompanyID, &ev.Period, &status, &ev.CreatedAt, &ev.StartedAt); err != nil {
			return nil, fmt.Errorf("scan stale evaluation: %w", err)
		}
		ev.Status = contracts.EvaluationStatus(status)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

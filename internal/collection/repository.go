package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/database"
)

// Repository is the Postgres job, unit-log and coverage store
type Repository struct {
	db database.DBTX
}

// NewRepository creates a Postgres-backed store
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const jobColumns = `id, analyst_id, collection_types, start_date, end_date, status, progress,
	overall_progress, version, COALESCE(error_message, ''), estimated_completion_at,
	created_at, started_at, completed_at`

func (r *Repository) Create(ctx context.Context, job *contracts.CollectionJob) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	query := `
		INSERT INTO collection_jobs
			(id, analyst_id, collection_types, start_date, end_date, status, progress,
			 overall_progress, version, estimated_completion_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		job.ID, job.AnalystID, typeStrings(job.Types), job.StartDate, job.EndDate,
		string(job.Status), progress, job.OverallProgress, job.Version,
		job.EstimatedCompletionAt, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert collection job: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*contracts.CollectionJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM collection_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contracts.NotFoundError{Kind: "collection job", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get collection job %s: %w", id, err)
	}
	return job, nil
}

// Update writes the whole mutable state guarded by the version column
// ⭐ 동시 unit 완료가 경합하는 유일한 쓰기 경로
func (r *Repository) Update(ctx context.Context, job *contracts.CollectionJob, expectedVersion int64) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	query := `
		UPDATE collection_jobs SET
			status = $3,
			progress = $4,
			overall_progress = $5,
			error_message = NULLIF($6, ''),
			started_at = $7,
			completed_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2`

	tag, err := r.db.Exec(ctx, query,
		job.ID, expectedVersion, string(job.Status), progress, job.OverallProgress,
		job.ErrorMessage, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update collection job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrConflict
	}

	job.Version = expectedVersion + 1
	return nil
}

func (r *Repository) ListByStatus(ctx context.Context, status contracts.JobStatus) ([]*contracts.CollectionJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM collection_jobs WHERE status = $1 ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*contracts.CollectionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*contracts.CollectionJob, error) {
	var (
		job      contracts.CollectionJob
		types    []string
		status   string
		progress []byte
	)
	err := row.Scan(
		&job.ID, &job.AnalystID, &types, &job.StartDate, &job.EndDate, &status, &progress,
		&job.OverallProgress, &job.Version, &job.ErrorMessage, &job.EstimatedCompletionAt,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = contracts.JobStatus(status)
	job.Types = make([]contracts.CollectionType, len(types))
	for i, t := range types {
		job.Types[i] = contracts.CollectionType(t)
	}
	job.Progress = make(map[contracts.CollectionType]contracts.TypeProgress)
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
	}
	return &job, nil
}

func typeStrings(types []contracts.CollectionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// Append inserts one unit audit row
func (r *Repository) Append(ctx context.Context, res *contracts.UnitResult) error {
	query := `
		INSERT INTO collection_logs
			(job_id, analyst_id, collection_type, target_id, status, payload, items,
			 error_message, duration_ms, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		RETURNING id, created_at`

	var payload []byte
	if len(res.Payload) > 0 {
		payload = res.Payload
	}

	err := r.db.QueryRow(ctx, query,
		res.JobID, res.AnalystID, string(res.Type), res.TargetID, string(res.Outcome),
		payload, res.Items, res.Error, res.Duration.Milliseconds(), res.Attempts,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert collection log: %w", err)
	}
	return nil
}

// ListAfter pages a job's log ascending by id
func (r *Repository) ListAfter(ctx context.Context, jobID string, afterID int64, limit int) ([]*contracts.UnitResult, error) {
	query := `
		SELECT id, job_id, analyst_id, collection_type, target_id, status, payload, items,
		       COALESCE(error_message, ''), duration_ms, attempts, created_at
		FROM collection_logs
		WHERE job_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, jobID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list collection logs: %w", err)
	}
	defer rows.Close()

	var out []*contracts.UnitResult
	for rows.Next() {
		var (
			res        contracts.UnitResult
			ctype      string
			outcome    string
			payload    []byte
			durationMs int64
		)
		if err := rows.Scan(&res.ID, &res.JobID, &res.AnalystID, &ctype, &res.TargetID, &outcome,
			&payload, &res.Items, &res.Error, &durationMs, &res.Attempts, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection log: %w", err)
		}
		res.Type = contracts.CollectionType(ctype)
		res.Outcome = contracts.UnitOutcome(outcome)
		res.Payload = payload
		res.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &res)
	}
	return out, rows.Err()
}

// CountSignals sums sns/media items from jobs whose date range overlaps [from, to)
func (r *Repository) CountSignals(ctx context.Context, analystID, companyID string, from, to time.Time) (contracts.SignalCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(l.items) FILTER (WHERE l.collection_type = 'sns' AND l.status = 'success'), 0),
			COALESCE(SUM(l.items) FILTER (WHERE l.collection_type = 'media' AND l.status = 'success'), 0),
			COUNT(*)
		FROM collection_logs l
		JOIN collection_jobs j ON j.id = l.job_id
		WHERE l.analyst_id = $1
		  AND l.target_id = $2
		  AND l.collection_type IN ('sns', 'media')
		  AND j.start_date < $4
		  AND j.end_date >= $3`

	var (
		counts contracts.SignalCounts
		total  int64
	)
	if err := r.db.QueryRow(ctx, query, analystID, companyID, from, to).
		Scan(&counts.SNSItems, &counts.MediaItems, &total); err != nil {
		return contracts.SignalCounts{}, fmt.Errorf("count signals: %w", err)
	}
	counts.Collected = total > 0
	return counts, nil
}

// ListCoverage returns the companies an analyst covers
func (r *Repository) ListCoverage(ctx context.Context, analystID string) ([]contracts.Target, error) {
	query := `
		SELECT analyst_name, company_id, company_name, ticker, sector
		FROM analyst_coverage
		WHERE analyst_id = $1
		ORDER BY company_id`

	rows, err := r.db.Query(ctx, query, analystID)
	if err != nil {
		return nil, fmt.Errorf("list coverage: %w", err)
	}
	defer rows.Close()

	var out []contracts.Target
	for rows.Next() {
		var t contracts.Target
		if err := rows.Scan(&t.AnalystName, &t.CompanyID, &t.CompanyName, &t.Ticker, &t.Sector); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

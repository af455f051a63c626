package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// JobRepository persists collection jobs with optimistic versioning
type JobRepository interface {
	Create(ctx context.Context, job *CollectionJob) error
	Get(ctx context.Context, id string) (*CollectionJob, error)
	// Update writes job iff the stored version equals expectedVersion, else ErrConflict
	Update(ctx context.Context, job *CollectionJob, expectedVersion int64) error
	ListByStatus(ctx context.Context, status JobStatus) ([]*CollectionJob, error)
}

// UnitLogRepository is the append-only unit audit log
type UnitLogRepository interface {
	Append(ctx context.Context, result *UnitResult) error
	ListAfter(ctx context.Context, jobID string, afterID int64, limit int) ([]*UnitResult, error)
	CountSignals(ctx context.Context, analystID, companyID string, from, to time.Time) (SignalCounts, error)
}

// CoverageRepository lists the companies an analyst covers
type CoverageRepository interface {
	ListCoverage(ctx context.Context, analystID string) ([]Target, error)
}

// ReportRepository reads reports and their predictions
type ReportRepository interface {
	GetReport(ctx context.Context, id string) (*Report, error)
	CountReports(ctx context.Context, analystID string, from, to time.Time) (int, error)
	ListOutcomes(ctx context.Context, reportID string) ([]PredictionOutcome, error)
	GetPeriodInputs(ctx context.Context, analystID, period string) (*PeriodInputs, error)
}

// EvaluationRepository persists evaluations
type EvaluationRepository interface {
	// CreateActive inserts a pending evaluation, or ErrActiveEvaluation
	CreateActive(ctx context.Context, ev *Evaluation) error
	Get(ctx context.Context, id string) (*Evaluation, error)
	// Save writes status/scores; a terminal stored row yields *StateError
	Save(ctx context.Context, ev *Evaluation) error
	// ListStale returns pending/processing evaluations created before the cutoff, oldest first
	ListStale(ctx context.Context, before time.Time) ([]*Evaluation, error)
}

// ScorecardRepository persists scorecards and their ranks
type ScorecardRepository interface {
	Upsert(ctx context.Context, sc *Scorecard) (*Scorecard, error)
	ListByPeriod(ctx context.Context, period string) ([]*Scorecard, error)
	UpdateRanks(ctx context.Context, period string, ranks map[string]int) error
	Periods(ctx context.Context) ([]string, error)
}

// AwardRepository persists awards
type AwardRepository interface {
	// ReplaceAwards atomically swaps the category+period award set
	ReplaceAwards(ctx context.Context, category, period string, awards []*Award) error
	ListAwards(ctx context.Context, period string) ([]*Award, error)
}

package jobs

import (
	"context"
	"fmt"

	"github.com/smsh73/AAA/pkg/logger"
)

// Refresher re-ranks every known period
type Refresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// RankingRefreshJob recomputes all period rankings nightly
type RankingRefreshJob struct {
	refresher Refresher
	logger    *logger.Logger
}

// NewRankingRefreshJob creates a new ranking refresh job
func NewRankingRefreshJob(refresher Refresher, log *logger.Logger) *RankingRefreshJob {
	return &RankingRefreshJob{
		refresher: refresher,
		logger:    log.Module("jobs.ranking"),
	}
}

// Name returns the job name
func (j *RankingRefreshJob) Name() string {
	return "ranking_refresh"
}

// Schedule returns the cron schedule (every day at 2 AM)
func (j *RankingRefreshJob) Schedule() string {
	return "0 0 2 * * *"
}

// Run executes the refresh
func (j *RankingRefreshJob) Run(ctx context.Context) error {
	n, err := j.refresher.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh rankings: %w", err)
	}

	j.logger.WithField("periods", n).Info("Ranking refresh completed")
	return nil
}

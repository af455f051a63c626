package jobs

import (
	"context"
	"fmt"

	"github.com/smsh73/AAA/internal/collection"
	"github.com/smsh73/AAA/pkg/logger"
)

// Sweeper finalizes or re-arms stale collection jobs
type Sweeper interface {
	Sweep(ctx context.Context) (*collection.SweepResult, error)
}

// CollectionSweepJob resumes polling for jobs orphaned by a restart
// ⭐ SSOT: 재시작 후 running job 복구는 이 Job에서만
type CollectionSweepJob struct {
	sweeper  Sweeper
	schedule string
	logger   *logger.Logger
}

// NewCollectionSweepJob creates a new sweep job; empty schedule means every minute
func NewCollectionSweepJob(sweeper Sweeper, schedule string, log *logger.Logger) *CollectionSweepJob {
	if schedule == "" {
		schedule = "0 * * * * *"
	}
	return &CollectionSweepJob{
		sweeper:  sweeper,
		schedule: schedule,
		logger:   log.Module("jobs.sweep"),
	}
}

// Name returns the job name
func (j *CollectionSweepJob) Name() string {
	return "collection_sweep"
}

// Schedule returns the cron schedule
func (j *CollectionSweepJob) Schedule() string {
	return j.schedule
}

// Run executes one sweep
func (j *CollectionSweepJob) Run(ctx context.Context) error {
	res, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep collection jobs: %w", err)
	}

	if res.Finalized+res.Rearmed+res.Dispatched > 0 {
		j.logger.WithFields(map[string]interface{}{
			"finalized":  res.Finalized,
			"rearmed":    res.Rearmed,
			"dispatched": res.Dispatched,
		}).Info("Collection sweep completed")
	}
	return nil
}

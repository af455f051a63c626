package jobs

import (
	"context"
	"fmt"

	"github.com/smsh73/AAA/pkg/logger"
)

// StaleEvaluationSweeper fails evaluations abandoned by a dead process
type StaleEvaluationSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// EvaluationSweepJob releases reports held by evaluations that never finished
type EvaluationSweepJob struct {
	sweeper StaleEvaluationSweeper
	logger  *logger.Logger
}

// NewEvaluationSweepJob creates a new evaluation sweep job
func NewEvaluationSweepJob(sweeper StaleEvaluationSweeper, log *logger.Logger) *EvaluationSweepJob {
	return &EvaluationSweepJob{
		sweeper: sweeper,
		logger:  log.Module("jobs.evaluation_sweep"),
	}
}

// Name returns the job name
func (j *EvaluationSweepJob) Name() string {
	return "evaluation_sweep"
}

// Schedule returns the cron schedule
// 5분마다
func (j *EvaluationSweepJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes one sweep
func (j *EvaluationSweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.SweepStale(ctx)
	if err != nil {
		return fmt.Errorf("sweep stale evaluations: %w", err)
	}
	if n > 0 {
		j.logger.WithField("failed", n).Info("Evaluation sweep completed")
	}
	return nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/ranking"
	"github.com/smsh73/AAA/pkg/logger"
)

// AwardSelector grants category awards for a period
type AwardSelector interface {
	SelectAwards(ctx context.Context, period, category string) ([]*contracts.Award, error)
}

// AwardsJob selects every category's awards for the quarter that just closed
type AwardsJob struct {
	selector AwardSelector
	logger   *logger.Logger
	now      func() time.Time
}

// NewAwardsJob creates a new awards job
func NewAwardsJob(selector AwardSelector, log *logger.Logger) *AwardsJob {
	return &AwardsJob{
		selector: selector,
		logger:   log.Module("jobs.awards"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *AwardsJob) Name() string {
	return "quarterly_awards"
}

// Schedule returns the cron schedule (분기 첫날 03:00)
func (j *AwardsJob) Schedule() string {
	return "0 0 3 1 1,4,7,10 *"
}

// Run selects awards for the previous quarter in every category
// 한 카테고리 실패가 나머지를 막지 않음
func (j *AwardsJob) Run(ctx context.Context) error {
	period := PreviousPeriod(j.now())

	var errs []error
	for _, category := range ranking.Categories() {
		awards, err := j.selector.SelectAwards(ctx, period, category)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"period":   period,
			"category": category,
			"awards":   len(awards),
		}).Info("Awards selected")
	}
	return errors.Join(errs...)
}

// PreviousPeriod returns the quarter label before the one containing t
func PreviousPeriod(t time.Time) string {
	return contracts.PeriodOf(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -3, 0))
}

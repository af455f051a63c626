package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
)

// Dispatcher fans a job's units out to a bounded worker pool
type Dispatcher struct {
	planner  *Planner
	executor *Executor
	tracker  *Tracker
	poller   *Poller
	logs     contracts.UnitLogRepository
	workers  int
	limiter  *rate.Limiter
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher; requestsPerSec <= 0 disables pacing
func NewDispatcher(planner *Planner, executor *Executor, tracker *Tracker, poller *Poller, logs contracts.UnitLogRepository, workers int, requestsPerSec float64, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	limit := rate.Inf
	if requestsPerSec > 0 {
		limit = rate.Limit(requestsPerSec)
	}
	return &Dispatcher{
		planner:  planner,
		executor: executor,
		tracker:  tracker,
		poller:   poller,
		logs:     logs,
		workers:  workers,
		limiter:  rate.NewLimiter(limit, workers),
		log:      log.Module("dispatcher"),
		metrics:  m,
	}
}

// Dispatch plans, starts and runs every unit of job, returning once all units resolved
// 완료 판정은 poller 담당
func (d *Dispatcher) Dispatch(ctx context.Context, job *contracts.CollectionJob) error {
	log := d.log.WithField("job_id", job.ID)

	units, totals, err := d.planner.Plan(ctx, job)
	if err != nil {
		d.fail(ctx, job.ID, fmt.Sprintf("planning failed: %v", err))
		return err
	}

	// 대상이 없는 유형이 있으면 영원히 unit-complete가 될 수 없으므로 즉시 실패
	var empty []string
	for _, ct := range job.Types {
		if totals[ct] == 0 {
			empty = append(empty, string(ct))
		}
	}
	if len(empty) > 0 {
		msg := fmt.Sprintf("no collection targets for types: %s", strings.Join(empty, ", "))
		d.fail(ctx, job.ID, msg)
		return contracts.NewValidationError("collection_types", msg)
	}

	applied, err := d.tracker.Start(ctx, job.ID, totals)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if !applied {
		log.Info("job no longer pending, skipping dispatch")
		return nil
	}
	if d.poller != nil {
		d.poller.Watch(ctx, job.ID)
	}

	log.WithFields(map[string]interface{}{
		"units":   len(units),
		"workers": d.workers,
	}).Info("dispatching collection units")

	unitCh := make(chan contracts.Unit, len(units))
	for _, u := range units {
		unitCh <- u
	}
	close(unitCh)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.worker(ctx, workerID, unitCh)
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// 미해소 unit은 sweep/timeout이 처리
		log.Warn("dispatch interrupted, undispatched units left unresolved")
		return nil
	}
	log.Debug("all units resolved")
	return nil
}

// worker executes units until the channel drains or ctx is done
// 종료(ctx 취소) 시 남은 unit을 failed로 해소하지 않음: 빈틈 있는 completed 작업 방지
func (d *Dispatcher) worker(ctx context.Context, workerID int, unitCh <-chan contracts.Unit) {
	for u := range unitCh {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		d.metrics.WorkerStarted()
		res := d.executor.Execute(ctx, u)
		d.metrics.WorkerDone()

		if ctx.Err() != nil && res.Outcome == contracts.UnitFailed {
			d.log.WithFields(map[string]interface{}{
				"worker": workerID,
				"job_id": u.JobID,
				"type":   u.Type,
				"target": u.Target.CompanyID,
			}).Info("unit interrupted by shutdown, not recorded")
			return
		}

		d.metrics.UnitFinished(string(u.Type), string(res.Outcome), res.Duration)
		d.record(workerID, res)
	}
}

// record persists the audit row and applies the outcome exactly once
// dispatch ctx가 취소돼도 기록은 남김
// ⭐ 경합으로 재시도가 소진돼도 outcome을 버리지 않음: 적용되거나 작업이 종료될 때까지 재적용
func (d *Dispatcher) record(workerID int, res *contracts.UnitResult) {
	ctx := context.Background()
	log := d.log.WithFields(map[string]interface{}{
		"worker":  workerID,
		"job_id":  res.JobID,
		"type":    res.Type,
		"target":  res.TargetID,
		"outcome": res.Outcome,
	})

	if err := d.logs.Append(ctx, res); err != nil {
		log.WithError(err).Error("failed to append unit log")
	}

	var (
		applied bool
		err     error
	)
	for round := 1; ; round++ {
		applied, err = d.tracker.RecordUnit(ctx, res.JobID, res.Type, res.Outcome)
		if !contracts.IsConflict(err) {
			break
		}
		log.WithError(err).WithField("round", round).Warn("unit outcome contended, re-applying")
		if perr := d.tracker.pause(ctx, d.tracker.maxRetries); perr != nil {
			err = perr
			break
		}
	}
	if err != nil {
		log.WithError(err).Error("failed to record unit outcome")
		return
	}
	if !applied {
		log.Debug("unit outcome not applied")
		return
	}
	if res.Outcome == contracts.UnitFailed {
		log.WithField("error", res.Error).Warn("unit failed")
	}
}

func (d *Dispatcher) fail(ctx context.Context, jobID, msg string) {
	if _, err := d.tracker.Fail(ctx, jobID, msg); err != nil {
		d.log.WithError(err).WithField("job_id", jobID).Error("failed to mark job failed")
		return
	}
	d.log.WithField("job_id", jobID).Warn(msg)
}

package collection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
)

// errNoChange aborts a mutation without writing
var errNoChange = errors.New("no change")

const (
	conflictBaseDelay = 2 * time.Millisecond
	conflictMaxDelay  = 100 * time.Millisecond
)

// conflictBackoff returns a full-jitter delay for the given conflict attempt
// 동시 writer들이 같은 간격으로 다시 부딪히지 않도록 분산
func conflictBackoff(attempt int) time.Duration {
	d := conflictBaseDelay << min(attempt, 6)
	if d > conflictMaxDelay {
		d = conflictMaxDelay
	}
	return d/2 + rand.N(d/2+1)
}

// Tracker owns a job's counters and status transitions
// ⭐ SSOT: 작업 상태 변경은 모두 Tracker.mutate 경유 (read → modify → version-checked write)
type Tracker struct {
	jobs       contracts.JobRepository
	maxRetries int
	now        func() time.Time
	backoff    func(attempt int) time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewTracker creates a tracker retrying conflicts up to maxRetries times
func NewTracker(jobs contracts.JobRepository, maxRetries int, log *logger.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		jobs:       jobs,
		maxRetries: maxRetries,
		now:        time.Now,
		backoff:    conflictBackoff,
		sleep:      sleepCtx,
		log:        log.Module("tracker"),
		metrics:    m,
	}
}

// mutate applies fn to a fresh copy and writes it back iff nobody else wrote in between
// 종료 상태 확인이 항상 첫 단계
func (t *Tracker) mutate(ctx context.Context, jobID string, fn func(job *contracts.CollectionJob) error) (*contracts.CollectionJob, error) {
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		job, err := t.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			return job, &contracts.StateError{Kind: "collection job", ID: jobID, Status: string(job.Status)}
		}

		expected := job.Version
		if err := fn(job); err != nil {
			return job, err
		}

		err = t.jobs.Update(ctx, job, expected)
		if err == nil {
			return job, nil
		}
		if !contracts.IsConflict(err) {
			return nil, err
		}

		t.metrics.Conflict()
		t.log.WithFields(map[string]interface{}{
			"job_id":  jobID,
			"attempt": attempt + 1,
		}).Debug("progress update conflict, retrying")

		if attempt < t.maxRetries {
			if err := t.pause(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("update job %s after %d attempts: %w", jobID, t.maxRetries+1, contracts.ErrConflict)
}

// pause waits out one jittered conflict backoff
func (t *Tracker) pause(ctx context.Context, attempt int) error {
	return t.sleep(ctx, t.backoff(attempt))
}

// settle turns the mutate error contract into (applied, err)
// StateError는 경합(poller/재시도)으로 인한 무해한 거절이므로 로그만 남김
func (t *Tracker) settle(op, jobID string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNoChange):
		return false, nil
	case contracts.IsState(err):
		t.log.WithError(err).WithFields(map[string]interface{}{
			"job_id": jobID,
			"op":     op,
		}).Warn("mutation on terminal job rejected")
		return false, nil
	default:
		return false, err
	}
}

// Start registers every type's unit total and moves the job to running in one write
func (t *Tracker) Start(ctx context.Context, jobID string, totals map[contracts.CollectionType]int) (bool, error) {
	_, err := t.mutate(ctx, jobID, func(job *contracts.CollectionJob) error {
		if job.Status != contracts.JobPending {
			return errNoChange
		}
		for _, ct := range job.Types {
			n, ok := totals[ct]
			if !ok || n <= 0 {
				return contracts.NewValidationError("totals", fmt.Sprintf("no units for type %s", ct))
			}
			job.Progress[ct] = contracts.TypeProgress{Total: n}
		}

		now := t.now()
		job.Status = contracts.JobRunning
		job.StartedAt = &now
		return nil
	})
	return t.settle("start", jobID, err)
}

// RecordUnit applies one resolved unit to its type's counters
func (t *Tracker) RecordUnit(ctx context.Context, jobID string, ct contracts.CollectionType, outcome contracts.UnitOutcome) (bool, error) {
	_, err := t.mutate(ctx, jobID, func(job *contracts.CollectionJob) error {
		if job.Status != contracts.JobRunning {
			return &contracts.StateError{Kind: "collection job", ID: jobID, Status: string(job.Status)}
		}

		p, ok := job.Progress[ct]
		if !ok {
			return contracts.NewValidationError("collection_type", fmt.Sprintf("type %s not declared on job", ct))
		}
		if p.Resolved() >= p.Total {
			return contracts.NewValidationError("collection_type", fmt.Sprintf("type %s already resolved %d/%d units", ct, p.Resolved(), p.Total))
		}

		switch outcome {
		case contracts.UnitSuccess:
			p.Completed++
		case contracts.UnitFailed:
			p.Failed++
		default:
			return contracts.NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", outcome))
		}
		job.Progress[ct] = p

		// 진행률은 running 동안 감소하지 않음
		job.OverallProgress = math.Max(job.OverallProgress, job.ComputeProgress())
		return nil
	})
	return t.settle("record_unit", jobID, err)
}

// Complete moves a unit-complete job to completed
// 실패 unit이 있어도 completed: 작업은 "시도한 커버리지"를 추적
func (t *Tracker) Complete(ctx context.Context, jobID string) (bool, error) {
	_, err := t.mutate(ctx, jobID, func(job *contracts.CollectionJob) error {
		if !job.IsUnitComplete() {
			return contracts.NewValidationError("status", "job is not unit-complete")
		}
		now := t.now()
		job.Status = contracts.JobCompleted
		job.OverallProgress = 100
		job.CompletedAt = &now
		return nil
	})
	applied, err := t.settle("complete", jobID, err)
	if applied {
		t.metrics.JobTerminal(string(contracts.JobCompleted))
	}
	return applied, err
}

// Fail moves a job to failed with an explanatory message
func (t *Tracker) Fail(ctx context.Context, jobID, message string) (bool, error) {
	return t.finish(ctx, "fail", jobID, contracts.JobFailed, message)
}

// Cancel moves a job to cancelled (operator action)
// 이미 dispatch된 unit은 중단하지 않음, 늦게 도착한 결과는 종료 상태 가드가 거절
func (t *Tracker) Cancel(ctx context.Context, jobID, reason string) (bool, error) {
	return t.finish(ctx, "cancel", jobID, contracts.JobCancelled, reason)
}

func (t *Tracker) finish(ctx context.Context, op, jobID string, status contracts.JobStatus, message string) (bool, error) {
	_, err := t.mutate(ctx, jobID, func(job *contracts.CollectionJob) error {
		now := t.now()
		job.Status = status
		job.ErrorMessage = message
		job.CompletedAt = &now
		return nil
	})
	applied, err := t.settle(op, jobID, err)
	if applied {
		t.metrics.JobTerminal(string(status))
	}
	return applied, err
}

package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/redis"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

// StartRequest is the input of StartCollectionJob
type StartRequest struct {
	AnalystID string
	Types     []string
	StartDate time.Time
	EndDate   time.Time
}

// StartResponse is returned immediately; dispatch runs in the background
type StartResponse struct {
	JobID                 string              `json:"job_id"`
	Status                contracts.JobStatus `json:"status"`
	EstimatedCompletionAt time.Time           `json:"estimated_completion_at"`
}

// Service is the collection-job orchestrator facade
// ⭐ SSOT: 수집 작업 생성/조회/취소는 이 서비스 경유
type Service struct {
	jobs       contracts.JobRepository
	logs       contracts.UnitLogRepository
	tracker    *Tracker
	poller     *Poller
	dispatcher *Dispatcher
	cache      *redis.Cache

	minutesPerType int
	now            func() time.Time
	log            *logger.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the orchestrator; cache may be nil
func NewService(jobs contracts.JobRepository, logs contracts.UnitLogRepository, tracker *Tracker, poller *Poller, dispatcher *Dispatcher, cache *redis.Cache, minutesPerType int, log *logger.Logger) *Service {
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		jobs:           jobs,
		logs:           logs,
		tracker:        tracker,
		poller:         poller,
		dispatcher:     dispatcher,
		cache:          cache,
		minutesPerType: minutesPerType,
		now:            time.Now,
		log:            log.Module("collection"),
		base:           base,
		cancel:         cancel,
	}
	if poller != nil {
		poller.OnTerminal = s.invalidate
	}
	return s
}

// StartCollectionJob validates the request, persists a pending job and dispatches it asynchronously
func (s *Service) StartCollectionJob(ctx context.Context, req StartRequest) (*StartResponse, error) {
	if req.AnalystID == "" {
		return nil, contracts.NewValidationError("analyst_id", "analyst id is required")
	}
	types, err := contracts.ParseCollectionTypes(req.Types)
	if err != nil {
		return nil, err
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, contracts.NewValidationError("date_range", "start and end dates are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, contracts.NewValidationError("date_range", "end date precedes start date")
	}

	now := s.now()
	job := &contracts.CollectionJob{
		ID:                    uuid.NewString(),
		AnalystID:             req.AnalystID,
		Types:                 types,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
		Status:                contracts.JobPending,
		Progress:              make(map[contracts.CollectionType]contracts.TypeProgress, len(types)),
		EstimatedCompletionAt: now.Add(time.Duration(len(types)*s.minutesPerType) * time.Minute),
		CreatedAt:             now,
	}
	for _, ct := range types {
		job.Progress[ct] = contracts.TypeProgress{}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"analyst_id": job.AnalystID,
		"types":      job.Types,
	}).Info("collection job created")

	s.dispatch(job)

	return &StartResponse{
		JobID:                 job.ID,
		Status:                job.Status,
		EstimatedCompletionAt: job.EstimatedCompletionAt,
	}, nil
}

func (s *Service) dispatch(job *contracts.CollectionJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.dispatcher.Dispatch(s.base, job); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Error("dispatch failed")
		}
		s.invalidate(job.ID)
	}()
}

// GetJobStatus returns the job snapshot, served from cache when possible
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*contracts.CollectionJob, error) {
	key := redis.JobStatusKey(jobID)
	if s.cache != nil {
		var cached contracts.CollectionJob
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Debug("job cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ttl := redis.TTLJobStatus
		if job.IsTerminal() {
			ttl = redis.TTLTerminal
		}
		if err := s.cache.Set(ctx, key, job, ttl); err != nil {
			s.log.WithError(err).Debug("job cache write failed")
		}
	}
	return job, nil
}

// ListJobs lists jobs in a status, oldest first
func (s *Service) ListJobs(ctx context.Context, status contracts.JobStatus) ([]*contracts.CollectionJob, error) {
	switch status {
	case contracts.JobPending, contracts.JobRunning, contracts.JobCompleted, contracts.JobFailed, contracts.JobCancelled:
	default:
		return nil, contracts.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.jobs.ListByStatus(ctx, status)
}

// GetJobLogs pages the unit audit log ascending by id
func (s *Service) GetJobLogs(ctx context.Context, jobID string, afterID int64, limit int) ([]*contracts.UnitResult, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	if afterID < 0 {
		afterID = 0
	}
	return s.logs.ListAfter(ctx, jobID, afterID, limit)
}

// CancelCollectionJob moves a non-terminal job to cancelled and returns its current snapshot
// 이미 종료된 작업은 그대로 반환
func (s *Service) CancelCollectionJob(ctx context.Context, jobID, reason string) (*contracts.CollectionJob, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	applied, err := s.tracker.Cancel(ctx, jobID, reason)
	if err != nil {
		return nil, err
	}
	if applied {
		s.log.WithFields(map[string]interface{}{
			"job_id": jobID,
			"reason": reason,
		}).Info("collection job cancelled")
	}
	s.invalidate(jobID)
	return s.jobs.Get(ctx, jobID)
}

// SweepResult summarizes one stale-job sweep
type SweepResult struct {
	Finalized  int `json:"finalized"`
	Rearmed    int `json:"rearmed"`
	Dispatched int `json:"dispatched"`
}

// Sweep checks every running job once and re-arms timers for those still running;
// pending jobs (e.g. left over by a crash before dispatch) are dispatched again
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}

	running, err := s.jobs.ListByStatus(ctx, contracts.JobRunning)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	for _, job := range running {
		done, err := s.poller.Check(ctx, job.ID)
		if err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("sweep check failed")
			continue
		}
		if done {
			res.Finalized++
			s.invalidate(job.ID)
			continue
		}
		if s.poller.Resume(ctx, job.ID) {
			res.Rearmed++
		}
	}

	pending, err := s.jobs.ListByStatus(ctx, contracts.JobPending)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		// 방금 생성된 작업은 dispatch 중일 수 있음
		if s.now().Sub(job.CreatedAt) < time.Minute {
			continue
		}
		s.dispatch(job)
		res.Dispatched++
	}

	if res.Finalized+res.Rearmed+res.Dispatched > 0 {
		s.log.WithFields(map[string]interface{}{
			"finalized":  res.Finalized,
			"rearmed":    res.Rearmed,
			"dispatched": res.Dispatched,
		}).Info("stale job sweep")
	}
	return res, nil
}

// Wait blocks until every background dispatch returned
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close stops dispatch workers and the poller
// 실행되지 않은 unit은 해소하지 않음: 작업은 running 으로 남고 다음 프로세스의 sweep/timeout 이 처리
func (s *Service) Close(ctx context.Context) {
	s.cancel()
	s.wg.Wait()
	if s.poller != nil {
		s.poller.Stop(ctx)
	}
}

func (s *Service) invalidate(jobID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.Background(), redis.JobStatusKey(jobID)); err != nil {
		s.log.WithError(err).Debug("job cache invalidation failed")
	}
}

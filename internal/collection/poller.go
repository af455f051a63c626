package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/redis"
)

// Clock abstracts time so the poller can be driven deterministically
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// Lease is cross-process ownership of a job's poll timer
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	// Extend renews the expiry; redis.ErrLeaseNotHeld once another holder took over
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// LeaseFunc builds the lease for a job (nil: in-process uniqueness only)
type LeaseFunc func(jobID string) Lease

// PollerConfig controls poll timing
type PollerConfig struct {
	GraceDelay   time.Duration
	Interval     time.Duration
	MaxWallClock time.Duration
	CheckTimeout time.Duration
}

// Poller is the self-rescheduling completion check, one logical timer per job
type Poller struct {
	tracker *Tracker
	jobs    contracts.JobRepository
	clock   Clock
	cfg     PollerConfig
	leases  LeaseFunc
	log     *logger.Logger

	mu      sync.Mutex
	timers  map[string]Timer
	held    map[string]Lease
	stopped bool

	// OnTerminal runs after the poller moves a job to a terminal state
	OnTerminal func(jobID string)
}

// NewPoller creates a poller
func NewPoller(tracker *Tracker, jobs contracts.JobRepository, clock Clock, cfg PollerConfig, leases LeaseFunc, log *logger.Logger) *Poller {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	return &Poller{
		tracker: tracker,
		jobs:    jobs,
		clock:   clock,
		cfg:     cfg,
		leases:  leases,
		log:     log.Module("poller"),
		timers:  make(map[string]Timer),
		held:    make(map[string]Lease),
	}
}

// Watch schedules the first check after the grace delay
// 이미 감시 중이면 no-op
func (p *Poller) Watch(ctx context.Context, jobID string) bool {
	return p.watch(ctx, jobID, p.cfg.GraceDelay)
}

// Resume schedules a check after one interval (restart recovery)
func (p *Poller) Resume(ctx context.Context, jobID string) bool {
	return p.watch(ctx, jobID, p.cfg.Interval)
}

func (p *Poller) watch(ctx context.Context, jobID string, delay time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	if _, ok := p.timers[jobID]; ok {
		return false
	}

	if p.leases != nil {
		lease := p.leases(jobID)
		ok, err := lease.TryAcquire(ctx)
		if err != nil {
			p.log.WithError(err).WithField("job_id", jobID).Warn("poller lease unavailable, polling locally")
		} else if !ok {
			p.log.WithField("job_id", jobID).Debug("job polled by another process")
			return false
		} else {
			p.held[jobID] = lease
		}
	}

	p.timers[jobID] = p.clock.AfterFunc(delay, func() { p.fire(jobID) })
	return true
}

// Watching reports whether a timer is pending for jobID
func (p *Poller) Watching(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[jobID]
	return ok
}

func (p *Poller) fire(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CheckTimeout)
	defer cancel()

	done, err := p.Check(ctx, jobID)
	if err != nil {
		p.log.WithError(err).WithField("job_id", jobID).Error("completion check failed")
		if contracts.IsNotFound(err) {
			done = true
		}
	}

	if !done && !p.renew(ctx, jobID) {
		return
	}

	p.mu.Lock()
	if done || p.stopped {
		delete(p.timers, jobID)
		lease := p.held[jobID]
		delete(p.held, jobID)
		p.mu.Unlock()

		if lease != nil {
			if err := lease.Release(ctx); err != nil {
				p.log.WithError(err).WithField("job_id", jobID).Debug("lease release failed")
			}
		}
		return
	}
	p.timers[jobID] = p.clock.AfterFunc(p.cfg.Interval, func() { p.fire(jobID) })
	p.mu.Unlock()
}

// renew extends the job's lease before the next timer is armed
// lease를 잃으면 로컬 타이머를 내려놓고 새 소유자에게 맡김
func (p *Poller) renew(ctx context.Context, jobID string) bool {
	p.mu.Lock()
	lease := p.held[jobID]
	p.mu.Unlock()
	if lease == nil {
		return true
	}

	err := lease.Extend(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, redis.ErrLeaseNotHeld):
		p.mu.Lock()
		delete(p.timers, jobID)
		delete(p.held, jobID)
		p.mu.Unlock()
		p.log.WithField("job_id", jobID).Warn("poll lease lost, leaving job to its new owner")
		return false
	default:
		// redis 일시 장애: 로컬 폴링 유지
		p.log.WithError(err).WithField("job_id", jobID).Warn("poll lease extension failed")
		return true
	}
}

// Check evaluates one poll; done = true once the job is terminal
func (p *Poller) Check(ctx context.Context, jobID string) (bool, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.IsTerminal() {
		return true, nil
	}

	if job.Status == contracts.JobRunning && job.IsUnitComplete() {
		applied, err := p.tracker.Complete(ctx, jobID)
		if err != nil {
			return false, err
		}
		if applied {
			p.log.WithFields(map[string]interface{}{
				"job_id":       jobID,
				"failed_units": job.FailedUnits(),
			}).Info("collection job completed")
			p.notify(jobID)
		}
		return true, nil
	}

	ref := job.CreatedAt
	if job.StartedAt != nil {
		ref = *job.StartedAt
	}
	elapsed := p.clock.Now().Sub(ref)
	if elapsed < p.cfg.MaxWallClock {
		return false, nil
	}

	msg := fmt.Sprintf("timed out after %s: %s", p.cfg.MaxWallClock, describeProgress(job))
	applied, err := p.tracker.Fail(ctx, jobID, msg)
	if err != nil {
		return false, err
	}
	if applied {
		p.log.WithField("job_id", jobID).Warn("collection job timed out")
		p.notify(jobID)
	}
	return true, nil
}

func (p *Poller) notify(jobID string) {
	if p.OnTerminal != nil {
		p.OnTerminal(jobID)
	}
}

// Stop cancels every pending timer
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	p.stopped = true
	leases := make([]Lease, 0, len(p.held))
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	for id, l := range p.held {
		leases = append(leases, l)
		delete(p.held, id)
	}
	p.mu.Unlock()

	for _, l := range leases {
		_ = l.Release(ctx)
	}
}

func describeProgress(job *contracts.CollectionJob) string {
	s := ""
	for i, ct := range job.Types {
		pr := job.Progress[ct]
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %d/%d resolved", ct, pr.Resolved(), pr.Total)
	}
	return s
}

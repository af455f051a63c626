package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/redis"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance moves time forward and runs due callbacks synchronously
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type fakeLease struct {
	grant     bool
	released  bool
	extended  int
	extendErr error
}

func (l *fakeLease) TryAcquire(ctx context.Context) (bool, error) { return l.grant, nil }

func (l *fakeLease) Extend(ctx context.Context) error {
	l.extended++
	return l.extendErr
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.released = true
	return nil
}

var testPollerConfig = PollerConfig{
	GraceDelay:   300 * time.Second,
	Interval:     60 * time.Second,
	MaxWallClock: 6 * time.Hour,
}

func newPollerFixture(t *testing.T) (*MemoryStore, *Tracker, *Poller, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := newFakeClock(testStart)
	tr := NewTracker(store, 5, logger.Nop(), nil)
	tr.now = clock.Now
	p := NewPoller(tr, store, clock, testPollerConfig, nil, logger.Nop())
	return store, tr, p, clock
}

func TestPoller_CheckCompletesUnitCompleteJob(t *testing.T) {
	ctx := context.Background()
	store, tr, p, _ := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 2})

	done, err := p.Check(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, done)

	_, _ = tr.RecordUnit(ctx, "job-1", contracts.TypeSNS, contracts.UnitSuccess)
	_, _ = tr.RecordUnit(ctx, "job-1", contracts.TypeSNS, contracts.UnitFailed)

	var notified []string
	p.OnTerminal = func(id string) { notified = append(notified, id) }

	done, err = p.Check(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []string{"job-1"}, notified)

	job, _ := store.Get(ctx, "job-1")
	assert.Equal(t, contracts.JobCompleted, job.Status)
	assert.Equal(t, 100.0, job.OverallProgress)
}

func TestPoller_CheckTimesOut(t *testing.T) {
	ctx := context.Background()
	store, tr, p, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 2})
	_, _ = tr.RecordUnit(ctx, "job-1", contracts.TypeSNS, contracts.UnitSuccess)

	clock.Advance(6*time.Hour - time.Second)
	done, err := p.Check(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, done)

	clock.Advance(time.Second)
	done, err = p.Check(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, done)

	job, _ := store.Get(ctx, "job-1")
	assert.Equal(t, contracts.JobFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "timed out")
	assert.Contains(t, job.ErrorMessage, "sns 1/2 resolved")
}

func TestPoller_CheckTerminalFirst(t *testing.T) {
	ctx := context.Background()
	store, tr, p, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 1})
	_, err := tr.Cancel(ctx, "job-1", "stop")
	require.NoError(t, err)

	clock.Advance(7 * time.Hour)
	done, err := p.Check(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, done)

	job, _ := store.Get(ctx, "job-1")
	assert.Equal(t, contracts.JobCancelled, job.Status, "terminal status is never overwritten")
}

func TestPoller_WatchReschedulesUntilTerminal(t *testing.T) {
	ctx := context.Background()
	store, tr, p, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 1})

	require.True(t, p.Watch(ctx, "job-1"))
	assert.False(t, p.Watch(ctx, "job-1"), "one timer per job")
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(299 * time.Second)
	assert.True(t, p.Watching("job-1"))

	// grace 경과: 아직 미완료 → interval 후 재확인
	clock.Advance(time.Second)
	assert.True(t, p.Watching("job-1"))
	assert.Equal(t, 1, clock.Pending())

	_, err := tr.RecordUnit(ctx, "job-1", contracts.TypeSNS, contracts.UnitSuccess)
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	assert.False(t, p.Watching("job-1"))
	assert.Equal(t, 0, clock.Pending())

	job, _ := store.Get(ctx, "job-1")
	assert.Equal(t, contracts.JobCompleted, job.Status)
}

func TestPoller_LeaseHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	store, tr, _, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)

	lease := &fakeLease{grant: false}
	p := NewPoller(tr, store, clock, testPollerConfig, func(string) Lease { return lease }, logger.Nop())

	assert.False(t, p.Watch(ctx, "job-1"))
	assert.Equal(t, 0, clock.Pending())
}

func TestPoller_LeaseReleasedOnTerminal(t *testing.T) {
	ctx := context.Background()
	store, tr, _, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 1})

	lease := &fakeLease{grant: true}
	p := NewPoller(tr, store, clock, testPollerConfig, func(string) Lease { return lease }, logger.Nop())
	require.True(t, p.Watch(ctx, "job-1"))

	_, err := tr.RecordUnit(ctx, "job-1", contracts.TypeSNS, contracts.UnitSuccess)
	require.NoError(t, err)

	clock.Advance(300 * time.Second)
	assert.False(t, p.Watching("job-1"))
	assert.True(t, lease.released)
}

func TestPoller_LeaseRenewal(t *testing.T) {
	tests := []struct {
		name         string
		extendErr    error
		wantWatching bool
		wantExtended int
	}{
		{"renewed on every reschedule", nil, true, 2},
		{"transient redis error keeps polling", errors.New("i/o timeout"), true, 2},
		{"lost lease stops local polling", redis.ErrLeaseNotHeld, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, tr, _, clock := newPollerFixture(t)
			newPendingJob(t, store, "job-1", contracts.TypeSNS)
			startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 2})

			lease := &fakeLease{grant: true, extendErr: tt.extendErr}
			p := NewPoller(tr, store, clock, testPollerConfig, func(string) Lease { return lease }, logger.Nop())
			require.True(t, p.Watch(ctx, "job-1"))

			clock.Advance(300 * time.Second)
			clock.Advance(60 * time.Second)

			assert.Equal(t, tt.wantExtended, lease.extended)
			assert.Equal(t, tt.wantWatching, p.Watching("job-1"))
			assert.False(t, lease.released, "a running job keeps or surrenders its lease without releasing it")

			job, err := store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, contracts.JobRunning, job.Status)
		})
	}
}

func TestPoller_StopCancelsTimers(t *testing.T) {
	ctx := context.Background()
	store, tr, p, clock := newPollerFixture(t)
	newPendingJob(t, store, "job-1", contracts.TypeSNS)
	startJob(t, tr, "job-1", map[contracts.CollectionType]int{contracts.TypeSNS: 1})

	require.True(t, p.Watch(ctx, "job-1"))
	p.Stop(ctx)

	assert.False(t, p.Watching("job-1"))
	assert.Equal(t, 0, clock.Pending())
	assert.False(t, p.Watch(ctx, "job-1"), "stopped poller accepts no new jobs")
}

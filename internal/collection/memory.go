package collection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
)

// MemoryStore is an in-process job, log and coverage store
// 단일 프로세스 모드(STORE_DRIVER=memory) 및 테스트용
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*contracts.CollectionJob
	logs     []*contracts.UnitResult
	nextLog  int64
	coverage map[string][]contracts.Target
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*contracts.CollectionJob),
		coverage: make(map[string][]contracts.Target),
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *contracts.CollectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return contracts.NewValidationError("id", "job already exists")
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.CollectionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "collection job", ID: id}
	}
	return job.Clone(), nil
}

// Update is a compare-and-swap on Version
func (s *MemoryStore) Update(ctx context.Context, job *contracts.CollectionJob, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return &contracts.NotFoundError{Kind: "collection job", ID: job.ID}
	}
	if cur.Version != expectedVersion {
		return contracts.ErrConflict
	}

	job.Version = expectedVersion + 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status contracts.JobStatus) ([]*contracts.CollectionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*contracts.CollectionJob
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, r *contracts.UnitResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	r.ID = s.nextLog
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *MemoryStore) ListAfter(ctx context.Context, jobID string, afterID int64, limit int) ([]*contracts.UnitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*contracts.UnitResult
	for _, r := range s.logs {
		if r.JobID != jobID || r.ID <= afterID {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountSignals sums sns/media items from jobs whose date range overlaps [from, to)
func (s *MemoryStore) CountSignals(ctx context.Context, analystID, companyID string, from, to time.Time) (contracts.SignalCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts contracts.SignalCounts
	for _, r := range s.logs {
		if r.AnalystID != analystID || r.TargetID != companyID {
			continue
		}
		if r.Type != contracts.TypeSNS && r.Type != contracts.TypeMedia {
			continue
		}
		job, ok := s.jobs[r.JobID]
		if !ok || !job.StartDate.Before(to) || job.EndDate.Before(from) {
			continue
		}

		counts.Collected = true
		if r.Outcome != contracts.UnitSuccess {
			continue
		}
		if r.Type == contracts.TypeSNS {
			counts.SNSItems += r.Items
		} else {
			counts.MediaItems += r.Items
		}
	}
	return counts, nil
}

// SetCoverage replaces an analyst's coverage list
func (s *MemoryStore) SetCoverage(analystID string, targets []contracts.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coverage[analystID] = append([]contracts.Target(nil), targets...)
}

func (s *MemoryStore) ListCoverage(ctx context.Context, analystID string) ([]contracts.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.Target(nil), s.coverage[analystID]...), nil
}

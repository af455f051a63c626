package evaluation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
)

// MemoryStore is an in-process report and evaluation store
type MemoryStore struct {
	mu       sync.Mutex
	reports  map[string]*contracts.Report
	outcomes map[string][]contracts.PredictionOutcome // report id →
	inputs   map[string]contracts.PeriodInputs         // analyst|period →
	evals    map[string]*contracts.Evaluation
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:  make(map[string]*contracts.Report),
		outcomes: make(map[string][]contracts.PredictionOutcome),
		inputs:   make(map[string]contracts.PeriodInputs),
		evals:    make(map[string]*contracts.Evaluation),
	}
}

// AddReport stores a report with its prediction outcomes
func (s *MemoryStore) AddReport(r *contracts.Report, outcomes ...contracts.PredictionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reports[r.ID] = &cp
	s.outcomes[r.ID] = append([]contracts.PredictionOutcome(nil), outcomes...)
}

// SetPeriodInputs stores the survey/market stage scores of an analyst and period
func (s *MemoryStore) SetPeriodInputs(analystID, period string, in contracts.PeriodInputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[analystID+"|"+period] = in
}

func (s *MemoryStore) GetReport(ctx context.Context, id string) (*contracts.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "report", ID: id}
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) CountReports(ctx context.Context, analystID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reports {
		if r.AnalystID == analystID && !r.PublishedAt.Before(from) && r.PublishedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListOutcomes(ctx context.Context, reportID string) ([]contracts.PredictionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.PredictionOutcome(nil), s.outcomes[reportID]...), nil
}

func (s *MemoryStore) GetPeriodInputs(ctx context.Context, analystID, period string) (*contracts.PeriodInputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.inputs[analystID+"|"+period]
	return &in, nil
}

func cloneEval(ev *contracts.Evaluation) *contracts.Evaluation {
	c := *ev
	c.Scores = append([]contracts.EvaluationScore(nil), ev.Scores...)
	return &c
}

func (s *MemoryStore) CreateActive(ctx context.Context, ev *contracts.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.evals {
		if cur.ReportID == ev.ReportID && !cur.Status.IsTerminal() {
			return contracts.ErrActiveEvaluation
		}
	}
	s.evals[ev.ID] = cloneEval(ev)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evals[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "evaluation", ID: id}
	}
	return cloneEval(ev), nil
}

func (s *MemoryStore) Save(ctx context.Context, ev *contracts.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.evals[ev.ID]
	if !ok {
		return &contracts.NotFoundError{Kind: "evaluation", ID: ev.ID}
	}
	if cur.Status.IsTerminal() {
		return &contracts.StateError{Kind: "evaluation", ID: ev.ID, Status: string(cur.Status)}
	}
	s.evals[ev.ID] = cloneEval(ev)
	return nil
}

func (s *MemoryStore) ListStale(ctx context.Context, before time.Time) ([]*contracts.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.Evaluation
	for _, ev := range s.evals {
		if !ev.Status.IsTerminal() && ev.CreatedAt.Before(before) {
			out = append(out, cloneEval(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

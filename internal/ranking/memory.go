package ranking

import (
	"context"
	"sort"
	"sync"

	"github.com/smsh73/AAA/internal/contracts"
)

// MemoryStore is an in-process scorecard and award store
type MemoryStore struct {
	mu     sync.Mutex
	cards  map[string]*contracts.Scorecard // id → card
	awards map[string][]*contracts.Award   // category|period → awards
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:  make(map[string]*contracts.Scorecard),
		awards: make(map[string][]*contracts.Award),
	}
}

func cloneCard(sc *contracts.Scorecard) *contracts.Scorecard {
	c := *sc
	c.KPIScores = make(map[contracts.KPIType]float64, len(sc.KPIScores))
	for k, v := range sc.KPIScores {
		c.KPIScores[k] = v
	}
	return &c
}

// Upsert keys on (analyst, period, company); an existing card keeps its id, rank and created-at
func (s *MemoryStore) Upsert(ctx context.Context, sc *contracts.Scorecard) (*contracts.Scorecard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.cards {
		if cur.AnalystID == sc.AnalystID && cur.Period == sc.Period && cur.CompanyID == sc.CompanyID {
			next := cloneCard(sc)
			next.ID = cur.ID
			next.Rank = cur.Rank
			next.CreatedAt = cur.CreatedAt
			s.cards[cur.ID] = next
			return cloneCard(next), nil
		}
	}

	stored := cloneCard(sc)
	s.cards[stored.ID] = stored
	return cloneCard(stored), nil
}

func (s *MemoryStore) ListByPeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*contracts.Scorecard
	for _, sc := range s.cards {
		if sc.Period == period {
			out = append(out, cloneCard(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateRanks(ctx context.Context, period string, ranks map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rank := range ranks {
		if sc, ok := s.cards[id]; ok && sc.Period == period {
			sc.Rank = rank
		}
	}
	return nil
}

func (s *MemoryStore) Periods(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, sc := range s.cards {
		if !seen[sc.Period] {
			seen[sc.Period] = true
			out = append(out, sc.Period)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ReplaceAwards(ctx context.Context, category, period string, awards []*contracts.Award) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]*contracts.Award, len(awards))
	for i, a := range awards {
		c := *a
		cp[i] = &c
	}
	s.awards[category+"|"+period] = cp
	return nil
}

func (s *MemoryStore) ListAwards(ctx context.Context, period string) ([]*contracts.Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*contracts.Award
	for _, set := range s.awards {
		for _, a := range set {
			if a.Period == period {
				c := *a
				out = append(out, &c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

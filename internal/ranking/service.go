package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
	"github.com/smsh73/AAA/pkg/redis"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	refreshConcurrency = 4
)

// Service materializes scorecards and maintains their per-period ranks and awards
type Service struct {
	scorecards contracts.ScorecardRepository
	awards     contracts.AwardRepository
	cache      *redis.Cache
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time

	// 같은 기간의 재순위 산정은 직렬화
	mu      sync.Mutex
	periods map[string]*sync.Mutex
}

// NewService creates a ranking service; cache may be nil
func NewService(scorecards contracts.ScorecardRepository, awards contracts.AwardRepository, cache *redis.Cache, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		scorecards: scorecards,
		awards:     awards,
		cache:      cache,
		metrics:    m,
		log:        log.Module("ranking"),
		now:        time.Now,
		periods:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) periodLock(period string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.periods[period]
	if !ok {
		l = &sync.Mutex{}
		s.periods[period] = l
	}
	return l
}

// UpsertScorecard creates or updates the card keyed by (analyst, period, company)
func (s *Service) UpsertScorecard(ctx context.Context, sc *contracts.Scorecard) (*contracts.Scorecard, error) {
	if sc.AnalystID == "" || sc.CompanyID == "" {
		return nil, contracts.NewValidationError("scorecard", "analyst and company are required")
	}
	if _, _, err := contracts.PeriodRange(sc.Period); err != nil {
		return nil, err
	}
	if math.IsNaN(sc.FinalScore) || sc.FinalScore < 0 || sc.FinalScore > 100 {
		return nil, contracts.NewValidationError("final_score", fmt.Sprintf("final score %v outside [0,100]", sc.FinalScore))
	}

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := s.now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now

	stored, err := s.scorecards.Upsert(ctx, sc)
	if err != nil {
		return nil, err
	}
	s.invalidate(sc.Period)
	return stored, nil
}

// RecomputePeriod re-ranks every scorecard of a period (idempotent full recompute)
func (s *Service) RecomputePeriod(ctx context.Context, period string) ([]*contracts.Scorecard, error) {
	if _, _, err := contracts.PeriodRange(period); err != nil {
		return nil, err
	}

	lock := s.periodLock(period)
	lock.Lock()
	defer lock.Unlock()

	cards, err := s.scorecards.ListByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list scorecards for %s: %w", period, err)
	}

	ranked := Rank(cards)
	if len(ranked) > 0 {
		if err := s.scorecards.UpdateRanks(ctx, period, RankMap(ranked)); err != nil {
			return nil, fmt.Errorf("update ranks for %s: %w", period, err)
		}
	}

	s.metrics.RankRecomputed()
	s.invalidate(period)
	s.log.WithFields(map[string]interface{}{
		"period":     period,
		"scorecards": len(ranked),
	}).Info("period re-ranked")
	return ranked, nil
}

// GetScorecardRanking returns up to limit scorecards ordered by rank ascending
func (s *Service) GetScorecardRanking(ctx context.Context, period string, limit int) ([]*contracts.Scorecard, error) {
	if _, _, err := contracts.PeriodRange(period); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	cards, err := s.rankedPage(ctx, period)
	if err != nil {
		return nil, err
	}
	if len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

// rankedPage returns the first MaxLimit ranked cards, cached per period
func (s *Service) rankedPage(ctx context.Context, period string) ([]*contracts.Scorecard, error) {
	key := redis.RankingKey(period, MaxLimit)
	if s.cache != nil {
		var cached []*contracts.Scorecard
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Debug("ranking cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	cards, err := s.scorecards.ListByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list scorecards for %s: %w", period, err)
	}

	// 미산정 카드가 있으면 먼저 재순위
	for _, sc := range cards {
		if sc.Rank == 0 {
			if cards, err = s.RecomputePeriod(ctx, period); err != nil {
				return nil, err
			}
			break
		}
	}

	sortByRank(cards)
	if len(cards) > MaxLimit {
		cards = cards[:MaxLimit]
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cards, redis.TTLRanking); err != nil {
			s.log.WithError(err).Debug("ranking cache write failed")
		}
	}
	return cards, nil
}

// RefreshAll re-ranks every known period concurrently
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	periods, err := s.scorecards.Periods(ctx)
	if err != nil {
		return 0, fmt.Errorf("list periods: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, p := range periods {
		p := p
		g.Go(func() error {
			_, err := s.RecomputePeriod(gctx, p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(periods), nil
}

// SelectAwards grants gold/silver/bronze for a category and period, replacing any previous set
// 입력 검증이 재순위 계산보다 먼저: 잘못된 요청이 쓰기를 일으키지 않음
func (s *Service) SelectAwards(ctx context.Context, period, category string) ([]*contracts.Award, error) {
	if _, _, err := contracts.PeriodRange(period); err != nil {
		return nil, err
	}
	if _, ok := contracts.AwardCategories[category]; !ok {
		return nil, contracts.NewValidationError("category", fmt.Sprintf("unknown award category %q", category))
	}

	ranked, err := s.RecomputePeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	awards, err := SelectAwards(ranked, category, period, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.awards.ReplaceAwards(ctx, category, period, awards); err != nil {
		return nil, fmt.Errorf("replace awards: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"period":   period,
		"category": category,
		"awards":   len(awards),
	}).Info("awards selected")
	return awards, nil
}

// ListAwards returns a period's awards by category then placing
func (s *Service) ListAwards(ctx context.Context, period string) ([]*contracts.Award, error) {
	if _, _, err := contracts.PeriodRange(period); err != nil {
		return nil, err
	}
	return s.awards.ListAwards(ctx, period)
}

func (s *Service) invalidate(period string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.Background(), redis.RankingKey(period, MaxLimit)); err != nil {
		s.log.WithError(err).Debug("ranking cache invalidation failed")
	}
}

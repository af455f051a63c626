package collection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

type fakePrices struct {
	mu    sync.Mutex
	calls int
	errs  []error // 호출 순서대로 반환, 소진되면 성공
	block bool
}

func (f *fakePrices) FetchPriceRange(ctx context.Context, ticker string, from, to time.Time) (*contracts.PriceRange, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &contracts.PriceRange{
		Ticker:      ticker,
		Dates:       []time.Time{from, to},
		ClosePrices: []int64{70000, 72000},
	}, nil
}

type fakeFinancials struct{}

func (fakeFinancials) FetchFinancials(ctx context.Context, ticker, period string) (*contracts.Financials, error) {
	return &contracts.Financials{Ticker: ticker, Period: period, Revenue: 1000}, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	hits    int
	fail    map[string]error
}

func (f *fakeSearch) SearchWeb(ctx context.Context, query string) ([]contracts.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	for substr, err := range f.fail {
		if strings.Contains(query, substr) {
			return nil, err
		}
	}
	out := make([]contracts.SearchResult, f.hits)
	for i := range out {
		out[i] = contracts.SearchResult{Title: query}
	}
	return out, nil
}

func testUnit(ct contracts.CollectionType) contracts.Unit {
	return contracts.Unit{
		JobID:     "job-1",
		AnalystID: "analyst-1",
		Type:      ct,
		Target: contracts.Target{
			AnalystName: "김분석",
			CompanyID:   "c-005930",
			CompanyName: "삼성전자",
			Ticker:      "005930",
			Sector:      "반도체",
		},
		StartDate: testStart,
		EndDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func newTestExecutor(prices contracts.PriceFetcher, fin contracts.FinancialsFetcher, search contracts.WebSearcher) *Executor {
	e := NewExecutor(prices, fin, search, ExecutorConfig{
		UnitTimeout:    50 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}, logger.Nop())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func temporary(msg string) error {
	return &contracts.ExternalError{Collaborator: "naver", Temporary: true, Err: errors.New(msg)}
}

func TestExecutor_Routes(t *testing.T) {
	search := &fakeSearch{hits: 4}
	e := newTestExecutor(&fakePrices{}, fakeFinancials{}, search)

	tests := []struct {
		ct        contracts.CollectionType
		wantItems int
	}{
		{contracts.TypeTargetPrice, 2},
		{contracts.TypePerformance, 1},
		{contracts.TypeSNS, 4},
		{contracts.TypeMedia, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			res := e.Execute(context.Background(), testUnit(tt.ct))
			require.Equal(t, contracts.UnitSuccess, res.Outcome, res.Error)
			assert.Equal(t, tt.wantItems, res.Items)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, "c-005930", res.TargetID)
			assert.NotEmpty(t, res.Payload)
		})
	}

	assert.Equal(t, []string{"삼성전자 김분석 목표주가", "김분석 애널리스트 삼성전자"}, search.queries)
}

func TestExecutor_PerformanceUsesQuarterOfEndDate(t *testing.T) {
	e := newTestExecutor(nil, fakeFinancials{}, nil)
	res := e.Execute(context.Background(), testUnit(contracts.TypePerformance))
	require.Equal(t, contracts.UnitSuccess, res.Outcome)
	assert.Contains(t, string(res.Payload), `"period":"2025-Q1"`)
}

func TestExecutor_Retries(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantOutcome  contracts.UnitOutcome
		wantAttempts int
	}{
		{"temporary then success", []error{temporary("502"), temporary("502")}, contracts.UnitSuccess, 3},
		{"temporary exhausts attempts", []error{temporary("a"), temporary("b"), temporary("c")}, contracts.UnitFailed, 3},
		{"permanent fails immediately", []error{&contracts.ExternalError{Collaborator: "naver", Err: errors.New("404")}}, contracts.UnitFailed, 1},
		{"plain error not retried", []error{errors.New("boom")}, contracts.UnitFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := &fakePrices{errs: tt.errs}
			e := newTestExecutor(prices, nil, nil)

			res := e.Execute(context.Background(), testUnit(contracts.TypeTargetPrice))
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantAttempts, prices.calls)
			if tt.wantOutcome == contracts.UnitFailed {
				assert.NotEmpty(t, res.Error)
				assert.Empty(t, res.Payload)
			}
		})
	}
}

func TestExecutor_TimeoutIsRetried(t *testing.T) {
	prices := &fakePrices{block: true}
	e := newTestExecutor(prices, nil, nil)
	e.cfg.UnitTimeout = 5 * time.Millisecond

	res := e.Execute(context.Background(), testUnit(contracts.TypeTargetPrice))
	assert.Equal(t, contracts.UnitFailed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.Error, "deadline exceeded")
}

func TestExecutor_MissingCollaborator(t *testing.T) {
	e := newTestExecutor(nil, nil, nil)
	for _, ct := range contracts.AllCollectionTypes() {
		res := e.Execute(context.Background(), testUnit(ct))
		assert.Equal(t, contracts.UnitFailed, res.Outcome, ct)
		assert.Equal(t, 1, res.Attempts, ct)
		assert.Contains(t, res.Error, "not configured")
	}
}

func TestExecutor_UnknownType(t *testing.T) {
	e := newTestExecutor(&fakePrices{}, nil, nil)
	res := e.Execute(context.Background(), testUnit(contracts.CollectionType("fax")))
	assert.Equal(t, contracts.UnitFailed, res.Outcome)
	assert.Contains(t, res.Error, "unknown collection type")
}

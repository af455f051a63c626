package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/pkg/logger"
)

// ExecutorConfig controls per-unit timeouts and retries
type ExecutorConfig struct {
	UnitTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Executor runs one unit against its external collaborator
// 반환값은 항상 success/failed 중 하나로 해소된 UnitResult
type Executor struct {
	prices     contracts.PriceFetcher
	financials contracts.FinancialsFetcher
	search     contracts.WebSearcher
	cfg        ExecutorConfig
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logger.Logger
}

// NewExecutor creates an executor; a nil collaborator fails its units
func NewExecutor(prices contracts.PriceFetcher, financials contracts.FinancialsFetcher, search contracts.WebSearcher, cfg ExecutorConfig, log *logger.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = 30 * time.Second
	}
	return &Executor{
		prices:     prices,
		financials: financials,
		search:     search,
		cfg:        cfg,
		sleep:      sleepCtx,
		log:        log.Module("executor"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute resolves u; it never returns an unresolved result
func (e *Executor) Execute(ctx context.Context, u contracts.Unit) *contracts.UnitResult {
	start := time.Now()
	res := &contracts.UnitResult{
		JobID:     u.JobID,
		AnalystID: u.AnalystID,
		Type:      u.Type,
		TargetID:  u.Target.CompanyID,
	}

	var (
		payload interface{}
		items   int
		err     error
	)
	backoff := e.cfg.InitialBackoff
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		payload, items, err = e.call(ctx, u)
		if err == nil || !retryable(err) || attempt == e.cfg.MaxAttempts {
			break
		}

		e.log.WithError(err).WithFields(map[string]interface{}{
			"job_id":  u.JobID,
			"type":    u.Type,
			"target":  u.Target.CompanyID,
			"attempt": attempt,
		}).Debug("unit attempt failed, retrying")

		if serr := e.sleep(ctx, backoff); serr != nil {
			err = serr
			break
		}
		backoff *= 2
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Outcome = contracts.UnitFailed
		res.Error = err.Error()
		return res
	}

	raw, merr := json.Marshal(payload)
	if merr != nil {
		res.Outcome = contracts.UnitFailed
		res.Error = fmt.Sprintf("encode payload: %v", merr)
		return res
	}
	res.Outcome = contracts.UnitSuccess
	res.Payload = raw
	res.Items = items
	return res
}

// retryable: timeout 또는 일시적 외부 오류만 재시도
func retryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || contracts.IsTemporaryExternal(err)
}

func (e *Executor) call(ctx context.Context, u contracts.Unit) (interface{}, int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UnitTimeout)
	defer cancel()

	t := u.Target
	switch u.Type {
	case contracts.TypeTargetPrice:
		if e.prices == nil {
			return nil, 0, missing("price")
		}
		pr, err := e.prices.FetchPriceRange(ctx, t.Ticker, u.StartDate, u.EndDate)
		if err != nil {
			return nil, 0, err
		}
		return pr, len(pr.ClosePrices), nil

	case contracts.TypePerformance:
		if e.financials == nil {
			return nil, 0, missing("financials")
		}
		fin, err := e.financials.FetchFinancials(ctx, t.Ticker, contracts.PeriodOf(u.EndDate))
		if err != nil {
			return nil, 0, err
		}
		return fin, 1, nil

	case contracts.TypeSNS:
		if e.search == nil {
			return nil, 0, missing("search")
		}
		hits, err := e.search.SearchWeb(ctx, fmt.Sprintf("%s %s 목표주가", t.CompanyName, t.AnalystName))
		if err != nil {
			return nil, 0, err
		}
		return hits, len(hits), nil

	case contracts.TypeMedia:
		if e.search == nil {
			return nil, 0, missing("search")
		}
		hits, err := e.search.SearchWeb(ctx, fmt.Sprintf("%s 애널리스트 %s", t.AnalystName, t.CompanyName))
		if err != nil {
			return nil, 0, err
		}
		return hits, len(hits), nil

	default:
		return nil, 0, contracts.NewValidationError("collection_type", fmt.Sprintf("unknown collection type %q", u.Type))
	}
}

func missing(name string) error {
	return &contracts.ExternalError{Collaborator: name, Err: errors.New("collaborator not configured")}
}

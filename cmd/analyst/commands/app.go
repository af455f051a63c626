package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/smsh73/AAA/internal/collection"
	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/evaluation"
	"github.com/smsh73/AAA/internal/external/dart"
	"github.com/smsh73/AAA/internal/external/naver"
	"github.com/smsh73/AAA/internal/ranking"
	"github.com/smsh73/AAA/pkg/config"
	"github.com/smsh73/AAA/pkg/database"
	"github.com/smsh73/AAA/pkg/httputil"
	"github.com/smsh73/AAA/pkg/logger"
	"github.com/smsh73/AAA/pkg/metrics"
	"github.com/smsh73/AAA/pkg/redis"
)

// app holds every wired component a command may need
// 커맨드별로 필요한 것만 꺼내 씀
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	collection *collection.Service
	evaluation *evaluation.Service
	ranking    *ranking.Service
}

// stores groups the repositories of one storage driver
type stores struct {
	jobs       contracts.JobRepository
	logs       contracts.UnitLogRepository
	coverage   contracts.CoverageRepository
	reports    contracts.ReportRepository
	evals      contracts.EvaluationRepository
	scorecards contracts.ScorecardRepository
	awards     contracts.AwardRepository
}

// newApp connects storage and wires the orchestrator, evaluation pipeline and ranking
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.New(cfg)

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc

	var cache *redis.Cache
	var leases collection.LeaseFunc
	if rc.Enabled() {
		cache = redis.NewCache(rc)
		// poll마다 연장되므로 죽은 프로세스의 lease는 몇 interval 안에 만료
		ttl := cfg.Collection.GraceDelay + 3*cfg.Collection.PollInterval
		leases = func(jobID string) collection.Lease {
			return redis.NewLease(rc, "poll:"+jobID, ttl)
		}
		log.Info("Redis enabled: cache, poll leases and shared rate limits active")
	}

	a.ranking = ranking.NewService(st.scorecards, st.awards, cache, log, a.metrics)

	tracker := collection.NewTracker(st.jobs, cfg.Collection.ConflictRetries, log, a.metrics)
	poller := collection.NewPoller(tracker, st.jobs, collection.RealClock(), collection.PollerConfig{
		GraceDelay:   cfg.Collection.GraceDelay,
		Interval:     cfg.Collection.PollInterval,
		MaxWallClock: cfg.Collection.MaxWallClock,
	}, leases, log)

	naverClient, dartClient := a.externalClients(rc)
	executor := collection.NewExecutor(naverClient, dartClient, naverClient, collection.ExecutorConfig{
		UnitTimeout:    cfg.Collection.UnitTimeout,
		MaxAttempts:    cfg.Collection.MaxAttempts,
		InitialBackoff: cfg.Collection.InitialBackoff,
	}, log)
	dispatcher := collection.NewDispatcher(
		collection.NewPlanner(st.coverage),
		executor,
		tracker,
		poller,
		st.logs,
		cfg.Collection.Workers,
		cfg.Collection.RequestsPerSec,
		log,
		a.metrics,
	)
	a.collection = collection.NewService(st.jobs, st.logs, tracker, poller, dispatcher, cache, cfg.Collection.MinutesPerType, log)

	a.evaluation = evaluation.NewService(
		st.reports,
		st.evals,
		st.logs,
		st.coverage,
		evaluation.NewReportAssessor(nil, "", log),
		a.ranking,
		evaluation.Config{
			EstimatedDuration: cfg.Evaluation.EstimatedDuration,
			Timeout:           cfg.Evaluation.Timeout,
		},
		log,
		a.metrics,
	)

	return a, nil
}

// openStores picks postgres or in-process repositories
func (a *app) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.UseMemoryStore() {
		a.log.Warn("Using in-memory stores: data is lost on exit")
		coll := collection.NewMemoryStore()
		evals := evaluation.NewMemoryStore()
		ranks := ranking.NewMemoryStore()
		return &stores{
			jobs:       coll,
			logs:       coll,
			coverage:   coll,
			reports:    evals,
			evals:      evals,
			scorecards: ranks,
			awards:     ranks,
		}, nil
	}

	db, err := database.New(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.log.Info("Connected to database")

	coll := collection.NewRepository(db.Pool)
	evals := evaluation.NewRepository(db.Pool)
	ranks := ranking.NewRepository(db.Pool)
	return &stores{
		jobs:       coll,
		logs:       coll,
		coverage:   coll,
		reports:    evals,
		evals:      evals,
		scorecards: ranks,
		awards:     ranks,
	}, nil
}

// externalClients builds the collaborators; retries belong to the executor
func (a *app) externalClients(rc *redis.Client) (*naver.Client, *dart.Client) {
	httpClient := httputil.New(a.log, a.cfg.Collection.UnitTimeout).DisableRetry()
	if rc.Enabled() {
		httpClient = httpClient.WithRateLimiter(redis.NewRateLimiter(rc), redis.RateLimitConfig{
			Key:    "naver",
			Limit:  int(a.cfg.Collection.RequestsPerSec) + 1,
			Window: time.Second,
		})
	}
	return naver.NewClient(httpClient, a.cfg.Naver, a.log), dart.NewClient(a.cfg.DART, a.log)
}

// health reports storage reachability
func (a *app) health(ctx context.Context) error {
	if a.db != nil {
		if _, err := a.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil && a.redis.Enabled() {
		if err := a.redis.Redis().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// close drains background work and releases connections
func (a *app) close(ctx context.Context) {
	if a.collection != nil {
		a.collection.Close(ctx)
	}
	if a.evaluation != nil {
		a.evaluation.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("redis close failed")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

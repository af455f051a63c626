package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/api"
	"github.com/smsh73/AAA/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 수집 작업 생성/조회/취소, 로그 스트리밍
- 평가 실행, 랭킹/시상 조회

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  POST /api/collections                 - 수집 작업 시작
  GET  /api/collections/{id}            - 작업 상태
  GET  /api/collections/{id}/logs/ws    - 로그 스트림 (WebSocket)
  POST /api/evaluations                 - 평가 실행
  GET  /api/scorecards/ranking          - 기간별 랭킹

Example:
  go run ./cmd/analyst api
  go run ./cmd/analyst api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort    string
	apiNoSweep bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
	apiCmd.Flags().BoolVar(&apiNoSweep, "no-sweep", false, "시작 시 미완료 작업 재개 생략")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Analyst Evaluation API Server ===")

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Wire components
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	a.log.WithFields(map[string]interface{}{
		"port":    cfg.Port,
		"env":     cfg.Env,
		"store":   cfg.StoreDriver,
		"origins": cfg.AllowedOrigins,
	}).Info("Initializing API server")

	// 3. Resume jobs and release evaluations orphaned by a previous process
	if !apiNoSweep {
		if res, err := a.collection.Sweep(ctx); err != nil {
			a.log.WithError(err).Warn("Startup sweep failed")
		} else {
			a.log.WithFields(map[string]interface{}{
				"finalized":  res.Finalized,
				"rearmed":    res.Rearmed,
				"dispatched": res.Dispatched,
			}).Info("Startup sweep completed")
		}
		if n, err := a.evaluation.SweepStale(ctx); err != nil {
			a.log.WithError(err).Warn("Startup evaluation sweep failed")
		} else if n > 0 {
			a.log.WithField("failed", n).Info("Stale evaluations released")
		}
	}

	// 4. Create router
	routes := api.Routes{
		Collection: handlers.NewCollectionHandler(a.collection, a.log).WithAllowedOrigins(cfg.AllowedOrigins),
		Evaluation: handlers.NewEvaluationHandler(a.evaluation, a.log),
		Ranking:    handlers.NewRankingHandler(a.ranking, a.log),
		Health:     a.health,
	}
	if cfg.MetricsEnabled {
		routes.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	router := api.NewRouter(routes, a.log)

	// 5. Create server
	server := api.New(cfg, a.log, router)

	// 6. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.WithError(serveErr).Error("Server stopped unexpectedly")
		}
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("Server shutdown failed")
	}
	a.close(shutdownCtx)

	a.log.Info("Server stopped")
	return serveErr
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/scheduler"
	"github.com/smsh73/AAA/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/analyst scheduler start
  go run ./cmd/analyst scheduler list
  go run ./cmd/analyst scheduler run ranking_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- collection_sweep: 매분 (고아 수집 작업 재개)
- evaluation_sweep: 5분마다 (중단된 평가 실패 처리)
- ranking_refresh: 매일 02:00 (전체 기간 재순위)
- quarterly_awards: 분기 첫날 03:00 (직전 분기 시상)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	sweepSchedule string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringVar(&sweepSchedule, "sweep-schedule", "", "collection_sweep cron 표현식 (초 단위 포함)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Analyst Evaluation Scheduler ===")

	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.close(ctx)
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close(context.Background())

	stats := sched.GetJobStats()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-18s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close(context.Background())

	// CLI 실행은 재시도 없이 한 번만
	sched.WithRetry(0, 0)
	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	sched.Wait()

	history, err := sched.GetJobHistory(jobName)
	if err != nil {
		return err
	}
	latest := history.GetLatestResults(1)
	if len(latest) == 0 {
		return fmt.Errorf("job %s produced no result", jobName)
	}

	result := latest[0]
	if !result.Success {
		PrintWarning(fmt.Sprintf("Job %s failed after %s: %s", jobName, result.Duration.Round(time.Millisecond), result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func initScheduler() (*app, *scheduler.Scheduler, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(a.log)
	for _, job := range []scheduler.Job{
		jobs.NewCollectionSweepJob(a.collection, sweepSchedule, a.log),
		jobs.NewEvaluationSweepJob(a.evaluation, a.log),
		jobs.NewRankingRefreshJob(a.ranking, a.log),
		jobs.NewAwardsJob(a.ranking, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			a.close(context.Background())
			return nil, nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return a, sched, nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/collection"
	"github.com/smsh73/AAA/internal/contracts"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "수집 작업 실행",
	Long: `애널리스트 커버리지에 대한 수집 작업을 시작하고 종료까지 추적합니다.

Ctrl+C를 누르면 작업이 취소(cancelled)됩니다.

Example:
  go run ./cmd/analyst collect --analyst A-001
  go run ./cmd/analyst collect --analyst A-001 --types target_price,performance --from 2025-01-01 --to 2025-03-31`,
	RunE: runCollect,
}

var (
	collectAnalyst  string
	collectTypes    []string
	collectFrom     string
	collectTo       string
	collectInterval time.Duration
)

func init() {
	rootCmd.AddCommand(collectCmd)

	defaultTypes := make([]string, 0, 4)
	for _, t := range contracts.AllCollectionTypes() {
		defaultTypes = append(defaultTypes, string(t))
	}

	collectCmd.Flags().StringVar(&collectAnalyst, "analyst", "", "애널리스트 ID (필수)")
	collectCmd.Flags().StringSliceVar(&collectTypes, "types", defaultTypes, "수집 유형")
	collectCmd.Flags().StringVar(&collectFrom, "from", "", "시작일 YYYY-MM-DD (기본: 90일 전)")
	collectCmd.Flags().StringVar(&collectTo, "to", "", "종료일 YYYY-MM-DD (기본: 오늘)")
	collectCmd.Flags().DurationVar(&collectInterval, "poll-interval", 5*time.Second, "완료 확인 간격")
	_ = collectCmd.MarkFlagRequired("analyst")
}

func runCollect(cmd *cobra.Command, args []string) error {
	start, end, err := collectRange(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// 대화형 실행은 grace 없이 바로 완료 확인
	cfg.Collection.GraceDelay = collectInterval
	cfg.Collection.PollInterval = collectInterval

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.close(closeCtx)
	}()

	resp, err := a.collection.StartCollectionJob(ctx, collection.StartRequest{
		AnalystID: collectAnalyst,
		Types:     collectTypes,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return fmt.Errorf("start collection job: %w", err)
	}

	PrintJobHeader(JobMetadata{
		JobID:     resp.JobID,
		AnalystID: collectAnalyst,
		Types:     collectTypes,
		Period:    &Period{StartDate: start.Format("2006-01-02"), EndDate: end.Format("2006-01-02")},
		Estimated: resp.EstimatedCompletionAt,
	})

	job, err := followJob(ctx, a.collection, resp.JobID, collectInterval)
	if errors.Is(err, context.Canceled) {
		PrintWarning("Interrupted, cancelling job")
		job, err = a.collection.CancelCollectionJob(context.Background(), resp.JobID, "interrupted from CLI")
	}
	if err != nil {
		return err
	}

	PrintSeparator()
	switch job.Status {
	case contracts.JobCompleted:
		if n := job.FailedUnits(); n > 0 {
			PrintWarning(fmt.Sprintf("Job %s completed with %d failed units", job.ID, n))
		} else {
			PrintSuccess(fmt.Sprintf("Job %s completed (100%%)", job.ID))
		}
		return nil
	default:
		PrintError(fmt.Sprintf("Job %s %s: %s", job.ID, job.Status, job.ErrorMessage))
		return fmt.Errorf("job %s", job.Status)
	}
}

// followJob polls the job and prints progress and failed units until it is terminal
func followJob(ctx context.Context, svc *collection.Service, jobID string, every time.Duration) (*contracts.CollectionJob, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var afterID int64
	lastLine := ""
	for {
		job, err := svc.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}

		logs, err := svc.GetJobLogs(ctx, jobID, afterID, 100)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			afterID = l.ID
			if l.Outcome == contracts.UnitFailed {
				fmt.Printf("  ✗ %s/%s: %s\n", l.Type, l.TargetID, l.Error)
			}
		}

		if line := progressDetail(job); line != lastLine {
			PrintProgress(string(job.Status), job.OverallProgress, line)
			lastLine = line
		}
		if job.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressDetail(job *contracts.CollectionJob) string {
	types := append([]contracts.CollectionType(nil), job.Types...)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	parts := make([]string, 0, len(types))
	for _, t := range types {
		p := job.Progress[t]
		parts = append(parts, fmt.Sprintf("%s %d/%d", t, p.Resolved(), p.Total))
	}
	return strings.Join(parts, ", ")
}

func collectRange(now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -90)

	if collectFrom != "" {
		t, err := time.Parse("2006-01-02", collectFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = t
	}
	if collectTo != "" {
		t, err := time.Parse("2006-01-02", collectTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}
	return start, end, nil
}

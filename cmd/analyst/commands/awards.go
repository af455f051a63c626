package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/ranking"
	"github.com/smsh73/AAA/internal/scheduler/jobs"
)

// awardsCmd represents the awards command
var awardsCmd = &cobra.Command{
	Use:   "awards [period]",
	Short: "분기 시상 선정",
	Long: `기간(YYYY-Qn)의 카테고리별 금/은/동을 선정합니다.
기간을 생략하면 직전 분기, 카테고리를 생략하면 전체 카테고리를 선정합니다.

Example:
  go run ./cmd/analyst awards 2025-Q1 --category AI
  go run ./cmd/analyst awards`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAwards,
}

var awardsCategory string

func init() {
	rootCmd.AddCommand(awardsCmd)
	awardsCmd.Flags().StringVar(&awardsCategory, "category", "", "시상 카테고리 (기본: 전체)")
}

func runAwards(cmd *cobra.Command, args []string) error {
	period := jobs.PreviousPeriod(time.Now())
	if len(args) == 1 {
		period = args[0]
	}
	categories := ranking.Categories()
	if awardsCategory != "" {
		categories = []string{awardsCategory}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var errs []error
	widths := []int{8, 8, 14, 8}
	for _, category := range categories {
		awards, err := a.ranking.SelectAwards(ctx, period, category)
		if err != nil {
			PrintError(fmt.Sprintf("%s: %v", category, err))
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}

		fmt.Printf("\n%s %s\n", period, category)
		PrintTableHeader([]string{"AWARD", "RANK", "ANALYST", "SCORE"}, widths)
		for _, aw := range awards {
			PrintTableRow([]string{
				string(aw.Type),
				fmt.Sprintf("%d", aw.Rank),
				aw.AnalystID,
				fmt.Sprintf("%.2f", aw.FinalScore),
			}, widths)
		}
	}
	return errors.Join(errs...)
}

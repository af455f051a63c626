package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/contracts"
	"github.com/smsh73/AAA/internal/ranking"
)

// rankCmd represents the rank command
var rankCmd = &cobra.Command{
	Use:   "rank [period]",
	Short: "기간별 랭킹 재계산",
	Long: `기간(YYYY-Qn)의 스코어카드 순위를 재계산하고 상위 결과를 출력합니다.
기간을 생략하면 모든 기간을 재계산합니다.

Example:
  go run ./cmd/analyst rank 2025-Q1
  go run ./cmd/analyst rank 2025-Q1 --limit 20
  go run ./cmd/analyst rank`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRank,
}

var rankLimit int

func init() {
	rootCmd.AddCommand(rankCmd)
	rankCmd.Flags().IntVar(&rankLimit, "limit", ranking.DefaultLimit, "출력할 순위 수")
}

func runRank(cmd *cobra.Command, args []string) error {
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

	if len(args) == 0 {
		n, err := a.ranking.RefreshAll(ctx)
		if err != nil {
			return fmt.Errorf("refresh rankings: %w", err)
		}
		PrintSuccess(fmt.Sprintf("Re-ranked %d periods", n))
		return nil
	}

	period := args[0]
	if _, _, err := contracts.PeriodRange(period); err != nil {
		return err
	}
	if _, err := a.ranking.RecomputePeriod(ctx, period); err != nil {
		return fmt.Errorf("recompute %s: %w", period, err)
	}

	cards, err := a.ranking.GetScorecardRanking(ctx, period, rankLimit)
	if err != nil {
		return err
	}

	fmt.Printf("\nRanking %s (%d)\n\n", period, len(cards))
	widths := []int{5, 14, 14, 10, 8}
	PrintTableHeader([]string{"RANK", "ANALYST", "COMPANY", "SECTOR", "SCORE"}, widths)
	for _, sc := range cards {
		PrintTableRow([]string{
			strconv.Itoa(sc.Rank),
			sc.AnalystID,
			sc.CompanyID,
			sc.Sector,
			fmt.Sprintf("%.2f", sc.FinalScore),
		}, widths)
	}
	return nil
}

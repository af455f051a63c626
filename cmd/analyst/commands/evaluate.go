package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/internal/contracts"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [report_id]",
	Short: "리포트 평가 실행",
	Long: `리포트 하나를 채점하고 스코어카드와 랭킹을 갱신합니다.
평가가 끝날 때까지 기다린 뒤 KPI별 점수를 출력합니다.

Example:
  go run ./cmd/analyst evaluate R-2025-0001`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
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

	resp, err := a.evaluation.ComputeEvaluation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("compute evaluation: %w", err)
	}
	a.evaluation.Wait()

	ev, err := a.evaluation.GetEvaluation(ctx, resp.EvaluationID)
	if err != nil {
		return err
	}

	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Evaluation %s (%s)\n", ev.ID, ev.Period)
	PrintSeparator()

	if ev.Status != contracts.EvaluationCompleted {
		PrintError(fmt.Sprintf("%s: %s", ev.Status, ev.ErrorMessage))
		return fmt.Errorf("evaluation %s", ev.Status)
	}

	widths := []int{30, 8, 8}
	PrintTableHeader([]string{"KPI", "SCORE", "WEIGHT"}, widths)
	for _, s := range ev.Scores {
		PrintTableRow([]string{string(s.KPIType), fmt.Sprintf("%.2f", s.Value), fmt.Sprintf("%.2f", s.Weight)}, widths)
	}
	PrintSeparator()
	fmt.Printf("  AI quantitative : %.2f\n", ev.AIQuantitative)
	fmt.Printf("  SNS market      : %.2f\n", ev.SNSMarket)
	fmt.Printf("  Expert survey   : %.2f\n", ev.ExpertSurvey)
	PrintSuccess(fmt.Sprintf("Final score %.2f", ev.FinalScore))
	return nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/alphalens/internal/analysis"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/notify"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol]",
	Short: "종목 분석 실행",
	Long: `분석 태스크를 생성하고 완료될 때까지 기다린 뒤 결과를 출력합니다.

Example:
  go run ./cmd/alpha analyze 005930
  go run ./cmd/alpha analyze 005930 --kind technical --range 1y`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeKind     string
	analyzeRange    string
	analyzePriority string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeKind, "kind", string(contracts.KindComprehensive), "comprehensive|technical|fundamental|sentiment")
	analyzeCmd.Flags().StringVar(&analyzeRange, "range", string(contracts.Range6M), "1m|3m|6m|1y")
	analyzeCmd.Flags().StringVar(&analyzePriority, "priority", string(contracts.PriorityNormal), "low|normal|high")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	task, err := a.service.Create(ctx, analysis.CreateRequest{
		Symbol:      args[0],
		Kind:        contracts.AnalysisKind(analyzeKind),
		TimeRange:   contracts.TimeRange(analyzeRange),
		Priority:    contracts.Priority(analyzePriority),
		RequesterID: "cli",
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Analysis %s\n", task.Symbol)
	PrintSeparator()
	PrintKeyValue("Task", task.ID, 8)
	PrintKeyValue("Kind", string(task.Kind), 8)
	PrintKeyValue("Range", string(task.TimeRange), 8)
	PrintSeparator()

	final, err := a.service.Wait(ctx, task.ID, a.cfg.Analysis.WaitTimeout)
	if err != nil {
		return fmt.Errorf("wait task: %w", err)
	}

	fmt.Print(notify.FormatTask(final))
	if final.State != contracts.StateCompleted {
		return fmt.Errorf("task %s ended %s", final.ID, final.State)
	}
	return nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// diagnoseCmd represents the diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [symbol]",
	Short: "종목 진단",
	Long: `종목의 최신 종합 결과로 강점/약점/조언/경고를 출력합니다.
결과가 없거나 하루 이상 지났으면 새로 분석합니다.

Example:
  go run ./cmd/alpha diagnose 005930`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	d, err := a.diagnoser.Diagnose(ctx, args[0])
	if err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Diagnosis %s\n", d.Symbol)
	PrintSeparator()
	PrintKeyValue("Rating", fmt.Sprintf("%.1f/10 (%s)", d.Rating, d.Recommendation), 10)
	PrintKeyValue("Risk", string(d.RiskLevel), 10)
	PrintKeyValue("Confidence", fmt.Sprintf("%d%%", d.Confidence), 10)
	PrintSeparator()
	fmt.Printf("  %s\n", d.Summary)

	printSection("Strengths", d.Strengths)
	printSection("Weaknesses", d.Weaknesses)
	printSection("Advice", d.Advice)
	printSection("Warnings", d.Warnings)
	return nil
}

func printSection(title string, items []string) {
	fmt.Println()
	fmt.Printf("  %s\n", title)
	PrintList(items)
}

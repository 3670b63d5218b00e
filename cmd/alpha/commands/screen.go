package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/alphalens/internal/contracts"
)

// screenCmd represents the screen command
var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "종목 선정",
	Long: `유니버스의 종합 점수로 종목을 선정하고 순위를 출력합니다.
지정하지 않은 기준은 프로파일 기본값을 사용합니다.

Example:
  go run ./cmd/alpha screen
  go run ./cmd/alpha screen --min-rating 7 --max-risk medium
  go run ./cmd/alpha screen --universe 005930,000660 --top 5`,
	RunE: runScreen,
}

var (
	screenUniverse       []string
	screenTop            int
	screenSave           bool
	screenMinRating      float64
	screenMinConfidence  int
	screenMaxRisk        string
	screenMinFundamental float64
	screenMinTechnical   float64
	screenMinUpside      float64
)

func init() {
	rootCmd.AddCommand(screenCmd)

	f := screenCmd.Flags()
	f.StringSliceVar(&screenUniverse, "universe", nil, "종목 코드 목록 (기본: 전체 활성 종목)")
	f.IntVar(&screenTop, "top", 0, "출력 개수 (기본: 프로파일 top_n)")
	f.BoolVar(&screenSave, "save", false, "선정 결과를 DB에 저장")
	f.Float64Var(&screenMinRating, "min-rating", 0, "최소 종합 점수 (0-10)")
	f.IntVar(&screenMinConfidence, "min-confidence", 0, "최소 신뢰도 (0-100)")
	f.StringVar(&screenMaxRisk, "max-risk", "", "최대 리스크 (very_low|low|medium|high|very_high)")
	f.Float64Var(&screenMinFundamental, "min-fundamental", 0, "최소 펀더멘털 점수 (0-10)")
	f.Float64Var(&screenMinTechnical, "min-technical", 0, "최소 기술적 점수 (0-10)")
	f.Float64Var(&screenMinUpside, "min-upside", 0, "최소 상승 여력 (%)")
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	criteria := a.screener.DefaultCriteria()
	f := cmd.Flags()
	if f.Changed("min-rating") {
		criteria.MinRating = screenMinRating
	}
	if f.Changed("min-confidence") {
		criteria.MinConfidence = screenMinConfidence
	}
	if f.Changed("max-risk") {
		criteria.MaxRiskLevel = contracts.RiskLevel(screenMaxRisk)
	}
	if f.Changed("min-fundamental") {
		criteria.MinFundamentalScore = screenMinFundamental
	}
	if f.Changed("min-technical") {
		criteria.MinTechnicalScore = screenMinTechnical
	}
	if f.Changed("min-upside") {
		criteria.MinUpside = screenMinUpside
	}

	sel, err := a.screener.Select(ctx, screenUniverse, criteria)
	if err != nil {
		return fmt.Errorf("screening: %w", err)
	}

	top := screenTop
	if top <= 0 {
		top = a.screener.TopN()
	}

	PrintDoubleSeparator()
	fmt.Printf("  Screening %s\n", sel.GeneratedAt.Format("2006-01-02 15:04"))
	PrintSeparator()
	PrintKeyValue("Universe", fmt.Sprintf("%d", sel.Universe), 9)
	PrintKeyValue("Evaluated", fmt.Sprintf("%d", sel.Evaluated), 9)
	PrintKeyValue("Passed", fmt.Sprintf("%d", len(sel.Ranked)), 9)
	PrintDoubleSeparator()

	widths := []int{4, 8, 6, 12, 10, 8}
	PrintTableHeader([]string{"#", "SYMBOL", "RATING", "REC", "RISK", "UPSIDE"}, widths)
	for _, item := range sel.Top(top) {
		r := item.Result
		PrintTableRow([]string{
			fmt.Sprintf("%d", item.Rank),
			item.Symbol,
			fmt.Sprintf("%.1f", r.OverallRating),
			string(r.Recommendation),
			string(r.RiskLevel),
			fmt.Sprintf("%+.0f%%", r.UpsidePotential),
		}, widths)
	}

	if len(sel.Skipped) > 0 {
		PrintWarning(fmt.Sprintf("%d instrument(s) skipped", len(sel.Skipped)))
		for _, s := range sel.Skipped {
			PrintKeyValue(s.Symbol, s.Reason, 8)
		}
	}

	if screenSave {
		if a.selections == nil {
			PrintWarning("--save requires DATABASE_URL")
			return nil
		}
		id, err := a.selections.SaveSelection(ctx, sel)
		if err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Saved screening run #%d", id))
	}
	return nil
}

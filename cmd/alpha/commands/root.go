package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	profilePath string
	schemaPath  string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alpha",
	Short: "AlphaLens - 종목 분석/선정 엔진",
	Long: `AlphaLens Unified CLI

종목별 종합 분석 태스크를 실행하고, 결과를 기준으로 종목을 선정/진단합니다.
데이터 갱신과 일괄 분석은 스케줄러가 담당합니다.

Usage:
  go run ./cmd/alpha [command]

Examples:
  go run ./cmd/alpha api
  go run ./cmd/alpha analyze 005930
  go run ./cmd/alpha screen --min-rating 7
  go run ./cmd/alpha diagnose 000660
  go run ./cmd/alpha scheduler list`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "scoring profile YAML (default: ANALYSIS_CONFIG or built-in)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "apply this migration file on startup")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug log level)")
}

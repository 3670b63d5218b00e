package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
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
  go run ./cmd/alpha scheduler start
  go run ./cmd/alpha scheduler list
  go run ./cmd/alpha scheduler run batch_analysis`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- price_refresh: 장중 5분마다 (시세 갱신)
- history_refresh: 평일 16:30 (일봉 갱신)
- batch_analysis: 평일 18:00 (전 종목 분석)
- maintenance: 매시 15분 (고아 태스크 정리, 오래된 태스크 삭제)
- daily_report: 평일 20:00 (선정 결과 발송)

같은 작업은 잠금으로 동시에 한 번만 실행됩니다.
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
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== AlphaLens Scheduler ===")

	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	a.scheduler.Start()

	PrintSuccess("Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, job := range a.scheduler.ListJobs() {
		fmt.Printf("  - %-16s %s\n", job.Name, job.Schedule)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	a.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.close(shutdownCtx)

	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close(ctx)

	widths := []int{16, 24, 6, 8}
	PrintTableHeader([]string{"JOB", "SCHEDULE", "RUNS", "SUCCESS"}, widths)
	for _, job := range a.scheduler.ListJobs() {
		PrintTableRow([]string{
			job.Name,
			job.Schedule,
			fmt.Sprintf("%d", job.TotalRuns),
			fmt.Sprintf("%.0f%%", job.SuccessRate*100),
		}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	fmt.Printf("Running job: %s\n", jobName)

	ctx := commandContext(cmd)
	a, err := bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.close(ctx)

	result, err := a.scheduler.RunJob(ctx, jobName)
	if err != nil {
		PrintError(fmt.Sprintf("%s failed after %d attempt(s): %v", jobName, result.Attempts, err))
		return fmt.Errorf("run job: %w", err)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/alphalens/internal/api"
	"github.com/wonny/alphalens/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 분석 태스크 생성/조회/취소 엔드포인트 제공
- 종목 선정/진단 엔드포인트 제공
- SCHEDULER_ENABLED=true 이면 스케줄러 동시 실행

Endpoints:
  GET  /health                     - Health check
  POST /api/tasks                  - 분석 태스크 생성
  GET  /api/tasks/{id}             - 태스크 조회
  POST /api/tasks/{id}/cancel      - 태스크 취소
  GET  /api/tasks/{id}/stream      - 진행률 스트림 (WebSocket)
  POST /api/screening/select            - 종목 선정
  GET  /api/screening/latest            - 최근 저장된 선정 결과
  GET  /api/screening/diagnose/{symbol} - 종목 진단
  GET  /api/jobs                   - 스케줄 작업 목록
  POST /api/jobs/{name}/trigger    - 작업 즉시 실행

Example:
  go run ./cmd/alpha api
  go run ./cmd/alpha api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort    string
	apiNoSched bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiNoSched, "no-scheduler", false, "스케줄러 없이 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== AlphaLens API Server ===")

	ctx := commandContext(cmd)

	// 1. Wire application
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	// 2. Settle tasks from a previous run
	a.recoverTasks(ctx)

	// 3. Create router
	h := api.Handlers{
		Tasks:     handlers.NewTaskHandler(a.service, a.log),
		Screening: handlers.NewScreeningHandler(a.screener, a.diagnoser, a.log),
		Jobs:      handlers.NewJobHandler(a.scheduler, a.log),
	}
	if a.db != nil {
		h.DB = a.db
		h.Screening.WithHistory(a.selections)
	}
	router := api.NewRouter(h, a.log)

	// 4. Create server
	server := api.New(a.cfg, a.log, router)

	// 5. Start scheduler
	runScheduler := a.cfg.Scheduler.Enabled && !apiNoSched
	if runScheduler {
		a.scheduler.Start()
	}

	// 6. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	if runScheduler {
		fmt.Printf("✅ Scheduler running (%d jobs)\n", len(a.scheduler.ListJobs()))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if runScheduler {
		a.scheduler.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.close(shutdownCtx)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.close(shutdownCtx)

	a.log.Info("Server stopped")
	return nil
}

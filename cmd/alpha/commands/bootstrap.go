package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/alphalens/internal/analysis"
	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/external/naver"
	"github.com/wonny/alphalens/internal/marketdata"
	"github.com/wonny/alphalens/internal/notify"
	"github.com/wonny/alphalens/internal/scheduler"
	"github.com/wonny/alphalens/internal/scheduler/jobs"
	"github.com/wonny/alphalens/internal/scoring"
	"github.com/wonny/alphalens/internal/selection"
	"github.com/wonny/alphalens/internal/strategyconfig"
	"github.com/wonny/alphalens/pkg/config"
	"github.com/wonny/alphalens/pkg/database"
	"github.com/wonny/alphalens/pkg/httputil"
	"github.com/wonny/alphalens/pkg/logger"
	"github.com/wonny/alphalens/pkg/redis"
)

const redisPrefix = "alphalens"

// app holds every wired component of one CLI invocation
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB // nil: in-memory mode
	redis  *redis.Client
	source *marketdata.Source

	instruments contracts.InstrumentRepository
	selections  *selection.Repository // nil: in-memory mode

	service   *analysis.Service
	screener  *selection.Screener
	diagnoser *selection.Diagnoser
	notifier  *notify.Multi
	scheduler *scheduler.Scheduler
}

// bootstrap wires config → logger → storage → data source → engine → services
func bootstrap(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if profilePath != "" {
		cfg.Analysis.ProfilePath = profilePath
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log}

	// 3. Storage
	if err := a.initStorage(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	// 4. Redis (disabled client when REDIS_ENABLED=false)
	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Market data provider
	httpClient := httputil.New(log).WithLimit(cfg.Naver.RatePerSec)
	if a.redis.Enabled() {
		httpClient = httpClient.WithRateLimiter(
			redis.NewRateLimiter(a.redis, redisPrefix),
			redis.NaverRateLimit(cfg.Naver.RatePerSec),
		)
	}
	naverClient := naver.NewClient(httpClient, cfg.Naver.BaseURL, cfg.Naver.ChartURL, log)

	var store marketdata.BarStore
	if a.db != nil {
		store = marketdata.NewRepository(a.db.Pool)
	}
	a.source = marketdata.NewSource(naverClient, redis.NewCache(a.redis, redisPrefix), store, marketdata.DefaultTTLs(), log)

	// 6. Scoring profile
	profile, err := strategyconfig.LoadOrDefault(cfg.Analysis.ProfilePath)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	profileHash, err := strategyconfig.Hash(profile)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("hash profile: %w", err)
	}
	for _, w := range strategyconfig.Warn(profile) {
		log.WithFields(map[string]interface{}{
			"code":    w.Code,
			"profile": profile.Meta.ProfileID,
		}).Warn(w.Message)
	}

	// 7. Notification
	senders := []notify.Sender{notify.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookNotifier(httputil.New(log).DisableRetry(), cfg.Notify.WebhookURL))
	}
	a.notifier = notify.NewMulti(senders...)

	// 8. Orchestrator
	var tasks contracts.TaskRepository = analysis.NewMemoryRepository()
	if a.db != nil {
		tasks = analysis.NewRepository(a.db.Pool)
	}
	a.service = analysis.NewService(
		tasks,
		a.instruments,
		a.source,
		analyzers.NewSuite(log),
		scoring.NewEngine(profile, log),
		a.notifier,
		analysis.Options{
			ProgressInterval:  cfg.Analysis.ProgressInterval,
			HeartbeatInterval: cfg.Analysis.HeartbeatInterval,
			StaleAfter:        cfg.Analysis.StaleAfter,
			WaitTimeout:       cfg.Analysis.WaitTimeout,
			Workers:           cfg.Analysis.Workers,
		},
		log,
	)

	// 9. Selection
	selOpts := selection.Options{
		Workers:     cfg.Analysis.Workers,
		WaitTimeout: cfg.Analysis.WaitTimeout,
	}
	a.screener = selection.NewScreener(a.service, a.instruments, profile.Screening, selOpts, log)
	a.diagnoser = selection.NewDiagnoser(a.service, profile.Screening, selOpts, log)

	// 10. Scheduler
	if err := a.initScheduler(); err != nil {
		a.close(ctx)
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"env":      cfg.Env,
		"database": a.db != nil,
		"redis":    a.redis.Enabled(),
		"profile":  profile.Meta.ProfileID,
		"hash":     profileHash[:12],
	}).Info("Application initialized")

	return a, nil
}

func (a *app) initStorage(ctx context.Context) error {
	if !a.cfg.HasDatabase() {
		a.instruments = marketdata.NewStaticInstruments(marketdata.DefaultUniverse()...)
		a.log.Warn("DATABASE_URL not set, using in-memory store")
		return nil
	}

	db, err := database.New(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.log.Info("Connected to database")

	if schemaPath != "" {
		if err := db.ApplySchema(ctx, schemaPath); err != nil {
			return err
		}
		a.log.WithField("path", schemaPath).Info("Schema applied")
	}

	repo := marketdata.NewRepository(db.Pool)
	a.instruments = repo
	a.selections = selection.NewRepository(db.Pool)

	// 빈 DB는 기본 유니버스로 시작
	active, err := repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}
	if len(active) == 0 {
		for _, inst := range marketdata.DefaultUniverse() {
			if err := repo.UpsertInstrument(ctx, inst); err != nil {
				return err
			}
		}
		a.log.WithField("count", len(marketdata.DefaultUniverse())).Info("Seeded default universe")
	}
	return nil
}

func (a *app) initScheduler() error {
	cfg := a.cfg

	var locker scheduler.Locker = scheduler.NewMemoryLocker()
	if cfg.Scheduler.LockBackend == "redis" {
		rl, err := redis.NewLocker(a.redis, redisPrefix)
		if err != nil {
			return fmt.Errorf("scheduler lock: %w", err)
		}
		locker = rl
	}

	var store jobs.SelectionStore
	if a.selections != nil {
		store = a.selections
	}

	a.scheduler = scheduler.New(scheduler.NewRegistry(locker, cfg.Scheduler.LockTTL), scheduler.DefaultOptions(), a.log)

	for _, job := range []scheduler.Job{
		jobs.NewPriceRefreshJob(a.source, a.instruments, cfg.Scheduler.PriceRefresh, cfg.Analysis.Workers, a.log),
		jobs.NewHistoryRefreshJob(a.source, a.instruments, cfg.Scheduler.HistoryRefresh, cfg.Analysis.Workers, a.log),
		jobs.NewBatchAnalysisJob(a.service, a.instruments, cfg.Scheduler.BatchAnalysis, a.log),
		jobs.NewMaintenanceJob(a.service, cfg.Scheduler.Maintenance, a.log),
		jobs.NewDailyReportJob(a.screener, store, a.notifier, cfg.Notify.ReportUser, cfg.Scheduler.DailyReport, a.log),
	} {
		if err := a.scheduler.AddJob(job); err != nil {
			return fmt.Errorf("register job: %w", err)
		}
	}
	return nil
}

// recoverTasks settles tasks whose owner stopped sending heartbeats
func (a *app) recoverTasks(ctx context.Context) {
	failed, requeued, err := a.service.RecoverStale(ctx, a.cfg.Analysis.StaleAfter)
	if err != nil {
		a.log.WithError(err).Warn("Stale task recovery failed")
		return
	}
	if failed > 0 || requeued > 0 {
		a.log.WithFields(map[string]interface{}{
			"failed":   failed,
			"requeued": requeued,
		}).Info("Recovered tasks from previous run")
	}
}

// close drains the orchestrator and releases connections
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.service != nil {
		errs = append(errs, a.service.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.log.WithError(err).Warn("Shutdown incomplete")
	}
}

// Package scheduler runs named periodic jobs. Each firing takes the job's
// named lock first; a firing that finds the lock held is skipped and counted,
// never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

// Trigger labels
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Options tunes retries
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions returns one retry after 30 seconds
func DefaultOptions() Options {
	return Options{MaxRetries: 1, RetryDelay: 30 * time.Second}
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron     *cron.Cron
	registry *Registry
	logger   *logger.Logger
	opts     Options

	mu      sync.Mutex
	entries map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler over an injected registry
func New(registry *Registry, opts Options, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		registry: registry,
		logger:   log.WithModule("scheduler"),
		opts:     opts,
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the job registry
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// AddJob registers a job and schedules it
func (s *Scheduler) AddJob(job Job) error {
	name := job.Name()

	if err := s.registry.Register(job); err != nil {
		return err
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.fire(name)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.entries[name] = id
	s.mu.Unlock()
	s.syncNextRun(name)

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the cron driver
func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.registry.Names())).Info("Starting scheduler")
	s.cron.Start()
	for _, name := range s.registry.Names() {
		s.syncNextRun(name)
	}
}

// Stop stops firing new runs, cancels running jobs and waits for them
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// ListJobs returns the status of every job
func (s *Scheduler) ListJobs() []JobStatus {
	for _, name := range s.registry.Names() {
		s.syncNextRun(name)
	}
	return s.registry.List()
}

// TriggerJob starts a job now, outside its schedule, and returns without waiting.
// ErrNotFound for unknown names, ErrLockContention while a run is in progress.
func (s *Scheduler) TriggerJob(ctx context.Context, name string) error {
	job, err := s.registry.Job(name)
	if err != nil {
		return err
	}
	if err := s.registry.TryLock(ctx, name); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, job, TriggerManual)
	}()
	return nil
}

// RunJob runs a job synchronously and returns its result
func (s *Scheduler) RunJob(ctx context.Context, name string) (JobResult, error) {
	job, err := s.registry.Job(name)
	if err != nil {
		return JobResult{}, err
	}
	if err := s.registry.TryLock(ctx, name); err != nil {
		return JobResult{}, err
	}

	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(ctx, job, TriggerManual), nil
}

// fire is the cron callback
func (s *Scheduler) fire(name string) {
	defer s.syncNextRun(name)

	job, err := s.registry.Job(name)
	if err != nil {
		return
	}

	err = s.registry.TryLock(s.ctx, name)
	if errors.Is(err, contracts.ErrLockContention) {
		now := time.Now()
		s.registry.Record(JobResult{
			JobName:   name,
			Trigger:   TriggerSchedule,
			StartTime: now,
			EndTime:   now,
			Skipped:   true,
		})
		s.logger.WithField("job", name).Warn("Job skipped: previous run still holds the lock")
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("job", name).Error("Job lock failed")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.execute(s.ctx, job, TriggerSchedule)
}

// execute runs a locked job with retries, records the result and releases the lock
func (s *Scheduler) execute(ctx context.Context, job Job, trigger string) JobResult {
	name := job.Name()
	result := JobResult{JobName: name, Trigger: trigger, StartTime: time.Now()}

	defer func() {
		if err := s.registry.Unlock(context.WithoutCancel(ctx), name); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Job unlock failed")
		}
	}()

	s.logger.WithFields(map[string]interface{}{
		"job":     name,
		"trigger": trigger,
	}).Info("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		lastErr = runSafely(ctx, job)
		if lastErr == nil {
			result.Success = true
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed")

		if attempt == s.opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			attempt = s.opts.MaxRetries
		case <-time.After(s.opts.RetryDelay):
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	s.registry.Record(result)

	if result.Success {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration,
		}).Info("Job completed successfully")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration,
			"error":    result.Error,
		}).Error("Job failed after all retries")
	}

	return result
}

// runSafely turns a job panic into an error
func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: job %s panicked: %v", contracts.ErrExecutionFailure, job.Name(), rec)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) syncNextRun(name string) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	if next := s.cron.Entry(id).Next; !next.IsZero() {
		s.registry.SetNextRun(name, next)
	}
}

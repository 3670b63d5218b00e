// Package analysis owns the analysis task lifecycle: creation, asynchronous
// execution through the scoring pipeline, progress, cancellation and batch runs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/scoring"
	"github.com/wonny/alphalens/pkg/logger"
)

// Options tunes the orchestrator
type Options struct {
	ProgressInterval  time.Duration // 진행률 시뮬레이터 tick
	HeartbeatInterval time.Duration // 실행 소유자 생존 신호 주기
	StaleAfter        time.Duration // 이 기간 신호 없는 processing은 소유자 없음으로 판단
	WaitTimeout       time.Duration // Wait 기본 타임아웃
	Workers           int           // RunBatch 동시 실행 수
	Checkpoints       []int         // 시뮬레이터 체크포인트
}

// DefaultOptions returns the standard orchestrator settings
func DefaultOptions() Options {
	return Options{
		ProgressInterval:  2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		StaleAfter:        2 * time.Minute,
		WaitTimeout:       2 * time.Minute,
		Workers:           5,
		Checkpoints:       []int{25, 45, 65, 85},
	}
}

// CreateRequest is the caller input for a new task
type CreateRequest struct {
	Symbol      string                 `json:"symbol"`
	Kind        contracts.AnalysisKind `json:"kind"`
	TimeRange   contracts.TimeRange    `json:"time_range"`
	Priority    contracts.Priority     `json:"priority"`
	RequesterID string                 `json:"requester_id"`
}

// Service is the Task Orchestrator
// ⭐ SSOT: AnalysisTask 상태 변경은 이 패키지만 수행
type Service struct {
	repo        contracts.TaskRepository
	instruments contracts.InstrumentRepository
	source      contracts.DataSource
	suite       *analyzers.Suite
	engine      *scoring.Engine
	notifier    contracts.Notifier
	opts        Options
	logger      *logger.Logger

	// mu serializes local claim (pending → processing), cancel of non-running
	// tasks and wg registration; cross-process races are settled by UpdateTask
	mu      sync.Mutex
	running map[string]*run
	closed  bool

	wmu      sync.Mutex
	watchers map[string]map[chan *contracts.AnalysisTask]struct{}

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewService creates a new orchestrator
func NewService(
	repo contracts.TaskRepository,
	instruments contracts.InstrumentRepository,
	source contracts.DataSource,
	suite *analyzers.Suite,
	engine *scoring.Engine,
	notifier contracts.Notifier,
	opts Options,
	log *logger.Logger,
) *Service {
	def := DefaultOptions()
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = def.ProgressInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	// 살아있는 소유자를 stale로 오판하지 않도록 최소 2회 heartbeat 여유
	if opts.StaleAfter < 2*opts.HeartbeatInterval {
		opts.StaleAfter = 2 * opts.HeartbeatInterval
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = def.WaitTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if len(opts.Checkpoints) == 0 {
		opts.Checkpoints = def.Checkpoints
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:        repo,
		instruments: instruments,
		source:      source,
		suite:       suite,
		engine:      engine,
		notifier:    notifier,
		opts:        opts,
		logger:      log.WithModule("analysis"),
		running:     make(map[string]*run),
		watchers:    make(map[string]map[chan *contracts.AnalysisTask]struct{}),
		baseCtx:     ctx,
		stop:        cancel,
		now:         time.Now,
	}
}

// Create validates the request, persists a pending task and dispatches execution.
// It returns without waiting for the analysis.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*contracts.AnalysisTask, error) {
	task, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}

	if !s.track() {
		s.logger.WithField("task_id", task.ID).Warn("Shutting down, task left pending for recovery")
		return task, nil
	}
	go func() {
		defer s.wg.Done()
		if _, err := s.Execute(s.baseCtx, task.ID); err != nil {
			s.logger.WithError(err).WithField("task_id", task.ID).Error("Task dispatch failed")
		}
	}()

	return task, nil
}

// track registers one execution with Shutdown; false once shutting down
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*contracts.AnalysisTask, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("orchestrator is shutting down: %w", contracts.ErrInvalidState)
	}

	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	inst, err := s.instruments.FindInstrument(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", req.Symbol, err)
	}
	if !inst.Active {
		return nil, fmt.Errorf("instrument %s is inactive: %w", req.Symbol, contracts.ErrNotFound)
	}

	task := &contracts.AnalysisTask{
		ID:          uuid.New().String(),
		Symbol:      inst.Symbol,
		Kind:        req.Kind,
		TimeRange:   req.TimeRange,
		Priority:    req.Priority,
		RequesterID: req.RequesterID,
		State:       contracts.StatePending,
		Progress:    0,
		CreatedAt:   s.now(),
	}

	if err := s.repo.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"task_id":   task.ID,
		"symbol":    task.Symbol,
		"kind":      task.Kind,
		"priority":  task.Priority,
		"requester": task.RequesterID,
	}).Info("Task created")

	s.publish(task)
	return task.Clone(), nil
}

func normalize(req CreateRequest) (CreateRequest, error) {
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" {
		return req, fmt.Errorf("symbol is required: %w", contracts.ErrInvalidArgument)
	}
	if req.Kind == "" {
		req.Kind = contracts.KindComprehensive
	}
	if !req.Kind.Valid() {
		return req, fmt.Errorf("unknown analysis kind %q: %w", req.Kind, contracts.ErrInvalidArgument)
	}
	if req.TimeRange == "" {
		req.TimeRange = contracts.Range6M
	}
	if _, err := req.TimeRange.Days(); err != nil {
		return req, err
	}
	if req.Priority == "" {
		req.Priority = contracts.PriorityNormal
	}
	if !req.Priority.Valid() {
		return req, fmt.Errorf("unknown priority %q: %w", req.Priority, contracts.ErrInvalidArgument)
	}
	return req, nil
}

// Get returns the current task record
func (s *Service) Get(ctx context.Context, id string) (*contracts.AnalysisTask, error) {
	task, err := s.repo.FindTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return task, nil
}

// LatestResult returns the newest completed result for symbol/kind
func (s *Service) LatestResult(ctx context.Context, symbol string, kind contracts.AnalysisKind) (*contracts.CompositeResult, error) {
	return s.repo.FindLatestCompositeResult(ctx, symbol, kind)
}

// Cancel moves a pending or processing task to cancelled.
// Terminal tasks fail with ErrInvalidState, foreign requesters with ErrPermissionDenied.
func (s *Service) Cancel(ctx context.Context, id, requesterID string) (*contracts.AnalysisTask, error) {
	s.mu.Lock()
	if r, ok := s.running[id]; ok {
		s.mu.Unlock()

		reply := make(chan cancelReply, 1)
		select {
		case r.cancels <- cancelRequest{requesterID: requesterID, reply: reply}:
			res := <-reply
			return res.task, res.err
		case <-r.done:
			// 소유자가 먼저 종료됨 → 저장된 기록 기준으로 판단
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	// pending, 또는 다른 프로세스가 실행 중인 processing.
	// 조건부 전이가 실패하면 그 사이 바뀐 상태로 다시 판단
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var task *contracts.AnalysisTask
		task, err = s.repo.FindTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", id, err)
		}
		if err := checkCancel(task, requesterID); err != nil {
			return task, err
		}

		prev := task.State
		now := s.now()
		task.State = contracts.StateCancelled
		task.CompletedAt = &now
		err = s.repo.UpdateTask(ctx, task, prev)
		if errors.Is(err, contracts.ErrInvalidState) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save task: %w", err)
		}

		s.logger.WithFields(map[string]interface{}{
			"task_id":  id,
			"from":     prev,
			"progress": task.Progress,
		}).Info("Task cancelled")

		s.publish(task)
		return task.Clone(), nil
	}
	return nil, fmt.Errorf("cancel task %s: %w", id, err)
}

func checkCancel(task *contracts.AnalysisTask, requesterID string) error {
	if task.RequesterID != "" && task.RequesterID != requesterID {
		return fmt.Errorf("task %s belongs to another requester: %w", task.ID, contracts.ErrPermissionDenied)
	}
	if !task.State.CanTransition(contracts.StateCancelled) {
		return fmt.Errorf("cannot cancel task in state %s: %w", task.State, contracts.ErrInvalidState)
	}
	return nil
}

// Wait blocks until the task is terminal, ctx is done or timeout elapses (ErrWaitTimeout)
func (s *Service) Wait(ctx context.Context, id string, timeout time.Duration) (*contracts.AnalysisTask, error) {
	if timeout <= 0 {
		timeout = s.opts.WaitTimeout
	}

	updates, unsubscribe := s.Subscribe(id)
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.State.IsTerminal() {
			return task, nil
		}

		select {
		case <-updates:
		case <-timer.C:
			return task, fmt.Errorf("task %s still %s after %s: %w", id, task.State, timeout, contracts.ErrWaitTimeout)
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
}

// Subscribe streams task snapshots after every persisted change.
// Slow subscribers may miss intermediate progress values.
func (s *Service) Subscribe(id string) (<-chan *contracts.AnalysisTask, func()) {
	ch := make(chan *contracts.AnalysisTask, 16)

	s.wmu.Lock()
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[chan *contracts.AnalysisTask]struct{})
	}
	s.watchers[id][ch] = struct{}{}
	s.wmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.wmu.Lock()
			delete(s.watchers[id], ch)
			if len(s.watchers[id]) == 0 {
				delete(s.watchers, id)
			}
			s.wmu.Unlock()
		})
	}
}

func (s *Service) publish(task *contracts.AnalysisTask) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for ch := range s.watchers[task.ID] {
		select {
		case ch <- task.Clone():
		default:
		}
	}
}

// Shutdown stops accepting tasks and waits for in-flight executions, batch
// runs included. When ctx ends first, running pipelines are cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Orchestrator drained")
		return nil
	case <-ctx.Done():
		s.stop()
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

// isDataUnavailable reports whether err should degrade to the neutral result
func isDataUnavailable(err error) bool {
	return errors.Is(err, contracts.ErrDataUnavailable) && !errors.Is(err, contracts.ErrExecutionFailure)
}

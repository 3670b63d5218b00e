package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/indicators"
)

// 장기 이동평균(MA250) 계산용 추가 조회 기간
const indicatorWarmupDays = 380

// 실행 중 체크포인트 (시뮬레이터와 동일 체계)
const (
	progressStarted    = 10
	progressSnapshot   = 25
	progressIndicators = 45
	progressAnalyzers  = 65
	progressComposed   = 85
)

var errStopped = errors.New("task left processing")

type updateKind int

const (
	updateProgress updateKind = iota
	updateComplete
	updateFail
)

type update struct {
	kind     updateKind
	progress int
	result   *contracts.CompositeResult
	message  string
}

type cancelRequest struct {
	requesterID string
	reply       chan cancelReply
}

type cancelReply struct {
	task *contracts.AnalysisTask
	err  error
}

// run is the single-owner state of one executing task.
// Only the owner goroutine touches task; everyone else sends messages.
type run struct {
	task    *contracts.AnalysisTask
	updates chan update
	cancels chan cancelRequest
	done    chan struct{} // closed once task is terminal and persisted
	final   *contracts.AnalysisTask
}

func newRun(task *contracts.AnalysisTask) *run {
	return &run{
		task:    task,
		updates: make(chan update),
		cancels: make(chan cancelRequest),
		done:    make(chan struct{}),
	}
}

// send delivers u to the owner; false once the task is terminal
func (r *run) send(u update) bool {
	select {
	case r.updates <- u:
		return true
	case <-r.done:
		return false
	}
}

func (r *run) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Execute runs a pending task to a terminal state and returns the final record.
// Non-pending tasks are returned unchanged. Pipeline failures are recorded on
// the task, never returned.
func (s *Service) Execute(ctx context.Context, id string) (*contracts.AnalysisTask, error) {
	r, task, err := s.claim(ctx, id)
	if err != nil || r == nil {
		return task, err
	}

	log := s.logger.WithFields(map[string]interface{}{
		"task_id": id,
		"symbol":  task.Symbol,
		"kind":    task.Kind,
	})
	log.Info("Task processing")

	go s.own(r)
	go s.simulate(r)

	result, err := s.pipeline(ctx, r, task)
	switch {
	case errors.Is(err, errStopped):
		log.Info("Pipeline stopped, task left processing")
	case err != nil:
		log.WithError(err).Error("Task failed")
		r.send(update{kind: updateFail, message: err.Error()})
	default:
		r.send(update{kind: updateComplete, result: result})
	}

	<-r.done
	final := r.final

	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()

	if final.State == contracts.StateCompleted {
		s.notify(ctx, final)
	}

	log.WithFields(map[string]interface{}{
		"state":    final.State,
		"progress": final.Progress,
	}).Info("Task finished")

	return final.Clone(), nil
}

// claim moves pending → processing and registers the owner.
// The transition is conditional so only one process can win a pending task.
func (s *Service) claim(ctx context.Context, id string) (*run, *contracts.AnalysisTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.repo.FindTask(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("task %s: %w", id, err)
	}
	if _, ok := s.running[id]; ok || task.State != contracts.StatePending {
		// 재진입 방지: pending이 아니면 no-op
		return nil, task, nil
	}

	now := s.now()
	task.State = contracts.StateProcessing
	task.Progress = progressStarted
	task.StartedAt = &now
	task.HeartbeatAt = &now
	err = s.repo.UpdateTask(ctx, task, contracts.StatePending)
	if errors.Is(err, contracts.ErrInvalidState) {
		// 다른 프로세스가 먼저 가져갔거나 취소함
		cur, ferr := s.repo.FindTask(ctx, id)
		if ferr != nil {
			return nil, nil, fmt.Errorf("task %s: %w", id, ferr)
		}
		return nil, cur, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim task: %w", err)
	}

	r := newRun(task)
	s.running[id] = r
	s.publish(task)
	return r, task.Clone(), nil
}

// own applies updates to the task record until it becomes terminal.
// A lost conditional write means another process settled the task; the owner
// then adopts the stored record and stops.
func (s *Service) own(r *run) {
	ctx := context.WithoutCancel(s.baseCtx)
	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	task := r.task
	for {
		var err error
		select {
		case u := <-r.updates:
			err = s.apply(ctx, task, u)
		case req := <-r.cancels:
			err = s.cancelOwned(ctx, task, req)
		case <-heartbeat.C:
			now := s.now()
			task.HeartbeatAt = &now
			err = s.repo.UpdateTask(ctx, task, contracts.StateProcessing)
		}

		if lostTransition(err) {
			r.final = s.reload(ctx, task)
			s.logger.WithFields(map[string]interface{}{
				"task_id": task.ID,
				"state":   r.final.State,
			}).Warn("Task settled by another process")
			s.publish(r.final)
			close(r.done)
			return
		}
		if err != nil {
			s.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to persist task")
		}

		if task.State.IsTerminal() {
			r.final = task.Clone()
			close(r.done)
			return
		}
	}
}

func lostTransition(err error) bool {
	return errors.Is(err, contracts.ErrInvalidState) || errors.Is(err, contracts.ErrNotFound)
}

// reload returns the stored record; the local copy when it cannot be read
func (s *Service) reload(ctx context.Context, task *contracts.AnalysisTask) *contracts.AnalysisTask {
	cur, err := s.repo.FindTask(ctx, task.ID)
	if err != nil {
		s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to reload task")
		return task.Clone()
	}
	return cur
}

// apply mutates task for u and persists it while still processing
func (s *Service) apply(ctx context.Context, task *contracts.AnalysisTask, u update) error {
	if task.State != contracts.StateProcessing {
		return nil
	}
	now := s.now()

	switch u.kind {
	case updateProgress:
		// 단조 증가, 100은 완료 시에만
		if u.progress <= task.Progress || u.progress >= 100 {
			return nil
		}
		task.Progress = u.progress

	case updateComplete:
		task.State = contracts.StateCompleted
		task.Progress = 100
		task.Result = u.result
		task.CompletedAt = &now

	case updateFail:
		task.State = contracts.StateFailed
		task.Progress = 0
		task.Error = u.message
		task.CompletedAt = &now
	}
	task.HeartbeatAt = &now

	if err := s.repo.UpdateTask(ctx, task, contracts.StateProcessing); err != nil {
		return err
	}
	s.publish(task)
	return nil
}

// cancelOwned handles a cancel request for a task this process executes
func (s *Service) cancelOwned(ctx context.Context, task *contracts.AnalysisTask, req cancelRequest) error {
	if err := checkCancel(task, req.requesterID); err != nil {
		req.reply <- cancelReply{task: task.Clone(), err: err}
		return nil
	}

	now := s.now()
	task.State = contracts.StateCancelled
	task.CompletedAt = &now
	if err := s.repo.UpdateTask(ctx, task, contracts.StateProcessing); err != nil {
		if lostTransition(err) {
			cur := s.reload(ctx, task)
			req.reply <- cancelReply{
				task: cur,
				err:  fmt.Errorf("cannot cancel task in state %s: %w", cur.State, contracts.ErrInvalidState),
			}
			return err
		}
		s.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to persist task")
	}

	s.publish(task)
	req.reply <- cancelReply{task: task.Clone()}
	s.logger.WithFields(map[string]interface{}{
		"task_id":  task.ID,
		"progress": task.Progress,
	}).Info("Task cancelled")
	return nil
}

// simulate advances progress through the checkpoints for caller feedback
func (s *Service) simulate(r *run) {
	ticker := time.NewTicker(s.opts.ProgressInterval)
	defer ticker.Stop()

	for _, cp := range s.opts.Checkpoints {
		select {
		case <-ticker.C:
		case <-r.done:
			return
		}
		if !r.send(update{kind: updateProgress, progress: cp}) {
			return
		}
	}
}

// pipeline runs refresh → indicators → analyzers → compose.
// Cancellation is observed between steps; panics become ExecutionFailure.
func (s *Service) pipeline(ctx context.Context, r *run, task *contracts.AnalysisTask) (result *contracts.CompositeResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", contracts.ErrExecutionFailure, rec)
		}
	}()

	step := func(progress int) error {
		if !r.send(update{kind: updateProgress, progress: progress}) || r.stopped() {
			return errStopped
		}
		return nil
	}

	// 1. Refresh market data
	snap, err := s.loadSnapshot(ctx, task)
	if r.stopped() {
		return nil, errStopped
	}
	if isDataUnavailable(err) {
		return s.engine.Fallback(task.Symbol, fallbackPrice(snap), task.Kind, err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: refresh market data: %w", contracts.ErrExecutionFailure, err)
	}
	if err := step(progressSnapshot); err != nil {
		return nil, err
	}

	// 2. Indicators
	ind := indicators.Compute(snap.Instrument.Bars)
	if err := step(progressIndicators); err != nil {
		return nil, err
	}

	// 3. Sub-analyzers (parallel, barrier)
	partials, err := s.suite.Run(ctx, snap, ind)
	if err != nil {
		return nil, fmt.Errorf("%w: analyzers: %w", contracts.ErrExecutionFailure, err)
	}
	if err := step(progressAnalyzers); err != nil {
		return nil, err
	}

	// 4. Compose
	result = s.engine.Compose(snap, ind, partials, task.Kind)
	if err := step(progressComposed); err != nil {
		return nil, err
	}

	return result, nil
}

// loadSnapshot gathers bars (required) and the optional inputs.
// A returned snapshot may be partial when err is ErrDataUnavailable.
func (s *Service) loadSnapshot(ctx context.Context, task *contracts.AnalysisTask) (*contracts.Snapshot, error) {
	inst, err := s.instruments.FindInstrument(ctx, task.Symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument: %w", err)
	}

	snap := &contracts.Snapshot{Instrument: *inst, FetchedAt: s.now()}

	days, err := task.TimeRange.Days()
	if err != nil {
		return nil, err
	}

	quote, err := s.source.GetLatestQuote(ctx, task.Symbol)
	if err := optional(err); err != nil {
		return snap, fmt.Errorf("quote: %w", err)
	}
	snap.Quote = quote

	bars, err := s.source.GetHistoricalBars(ctx, task.Symbol, days+indicatorWarmupDays)
	if err != nil {
		return snap, fmt.Errorf("bars: %w", err)
	}
	if len(bars) == 0 {
		return snap, fmt.Errorf("no bars for %s: %w", task.Symbol, contracts.ErrDataUnavailable)
	}
	snap.Instrument.Bars = bars
	snap.Instrument.LatestPrice = bars[len(bars)-1].Close

	news, err := s.source.GetRecentNews(ctx, task.Symbol)
	if err := optional(err); err != nil {
		return snap, fmt.Errorf("news: %w", err)
	}
	snap.News = news

	fundamentals, err := s.source.GetFundamentals(ctx, task.Symbol)
	if err := optional(err); err != nil {
		return snap, fmt.Errorf("fundamentals: %w", err)
	}
	snap.Fundamentals = fundamentals

	market, err := s.source.GetMarketContext(ctx, task.Symbol)
	if err := optional(err); err != nil {
		return snap, fmt.Errorf("market context: %w", err)
	}
	snap.Market = market

	if sr, ok := s.source.(interface{ IsStale(symbol string) bool }); ok {
		snap.Stale = sr.IsStale(task.Symbol)
	}

	return snap, nil
}

// optional drops ErrDataUnavailable for inputs that only degrade a sub-score
func optional(err error) error {
	if err == nil || isDataUnavailable(err) {
		return nil
	}
	return err
}

func fallbackPrice(snap *contracts.Snapshot) float64 {
	if snap == nil {
		return 0
	}
	return snap.CurrentPrice()
}

// notify is fire-and-forget: failures are logged and never revert the task
func (s *Service) notify(ctx context.Context, task *contracts.AnalysisTask) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), task.RequesterID, task); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"task_id":   task.ID,
			"requester": task.RequesterID,
		}).Warn("Notification failed")
	}
}

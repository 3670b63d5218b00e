package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
)

// BatchResult is the isolated outcome of one symbol in a batch
type BatchResult struct {
	Index  int                 `json:"-"`
	Symbol string              `json:"symbol"`
	TaskID string              `json:"task_id,omitempty"`
	State  contracts.TaskState `json:"state,omitempty"`
	Rating float64             `json:"rating,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// OK reports whether the symbol reached completed
func (b BatchResult) OK() bool {
	return b.State == contracts.StateCompleted
}

type batchJob struct {
	index  int
	symbol string
}

// RunBatch analyzes every symbol over a bounded worker pool.
// Each symbol succeeds or fails on its own; results keep input order.
func (s *Service) RunBatch(ctx context.Context, symbols []string, kind contracts.AnalysisKind, requesterID string) []BatchResult {
	workers := s.opts.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"kind":    kind,
		"workers": workers,
	}).Info("Starting batch analysis")

	// 1. Create worker pool
	jobCh := make(chan batchJob, len(symbols))
	resultCh := make(chan BatchResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- s.runOne(ctx, job, kind, requesterID)
			}
		}()
	}

	// 2. Send symbols to workers
	for i, symbol := range symbols {
		jobCh <- batchJob{index: i, symbol: symbol}
	}
	close(jobCh)

	// 3. Wait for all workers to complete
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// 4. Collect results
	results := make([]BatchResult, len(symbols))
	successCount, failCount := 0, 0
	for r := range resultCh {
		results[r.Index] = r
		if r.OK() {
			successCount++
		} else {
			failCount++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"success": successCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("Batch analysis completed")

	return results
}

func (s *Service) runOne(ctx context.Context, job batchJob, kind contracts.AnalysisKind, requesterID string) (res BatchResult) {
	res = BatchResult{Index: job.index, Symbol: job.symbol}

	defer func() {
		if rec := recover(); rec != nil {
			res.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	// Shutdown이 기다리는 실행으로 등록, 강제 종료 시 함께 취소
	if !s.track() {
		res.Error = fmt.Sprintf("orchestrator is shutting down: %v", contracts.ErrInvalidState)
		return res
	}
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	task, err := s.create(ctx, CreateRequest{Symbol: job.symbol, Kind: kind, RequesterID: requesterID})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.TaskID = task.ID

	final, err := s.Execute(ctx, task.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.State = final.State
	res.Error = final.Error
	if final.Result != nil {
		res.Rating = final.Result.OverallRating
	}
	return res
}

// RecoverStale fails processing tasks whose owner has sent no heartbeat since
// now-olderThan, then re-dispatches pending tasks of the same age.
// olderThan is raised to Options.StaleAfter so live owners in other processes
// are never mistaken for abandoned ones.
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (failed, requeued int, err error) {
	if olderThan < s.opts.StaleAfter {
		olderThan = s.opts.StaleAfter
	}
	cutoff := s.now().Add(-olderThan)

	processing, err := s.repo.ListByState(ctx, contracts.StateProcessing)
	if err != nil {
		return 0, 0, fmt.Errorf("list processing tasks: %w", err)
	}

	for _, task := range processing {
		s.mu.Lock()
		_, live := s.running[task.ID]
		s.mu.Unlock()
		if live || lastSeen(task).After(cutoff) {
			continue
		}

		now := s.now()
		task.State = contracts.StateFailed
		task.Progress = 0
		task.Error = "abandoned: execution owner stopped sending heartbeats"
		task.CompletedAt = &now
		err := s.repo.UpdateTask(ctx, task, contracts.StateProcessing)
		if errors.Is(err, contracts.ErrInvalidState) {
			// 그 사이 소유자가 종료 상태로 전이
			continue
		}
		if err != nil {
			return failed, 0, fmt.Errorf("failed to save task %s: %w", task.ID, err)
		}
		s.publish(task)
		failed++
	}

	pending, err := s.repo.ListByState(ctx, contracts.StatePending)
	if err != nil {
		return failed, 0, fmt.Errorf("list pending tasks: %w", err)
	}

	for _, task := range pending {
		if task.CreatedAt.After(cutoff) {
			continue
		}
		if !s.track() {
			break
		}
		id := task.ID
		go func() {
			defer s.wg.Done()
			if _, err := s.Execute(s.baseCtx, id); err != nil {
				s.logger.WithError(err).WithField("task_id", id).Error("Requeued task failed to start")
			}
		}()
		requeued++
	}

	if failed > 0 || requeued > 0 {
		s.logger.WithFields(map[string]interface{}{
			"failed":   failed,
			"requeued": requeued,
			"cutoff":   cutoff,
		}).Warn("Recovered stale tasks")
	}

	return failed, requeued, nil
}

// lastSeen is the newest sign of life of a processing task
func lastSeen(task *contracts.AnalysisTask) time.Time {
	switch {
	case task.HeartbeatAt != nil:
		return *task.HeartbeatAt
	case task.StartedAt != nil:
		return *task.StartedAt
	}
	return task.CreatedAt
}

// Purge deletes terminal tasks finished before the cutoff
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.DeleteFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return n, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
)

// JobStatus is the introspection view of one job
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	SkippedRuns int        `json:"skipped_runs"`
	TotalRuns   int        `json:"total_runs"`
	SuccessRate float64    `json:"success_rate"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type jobState struct {
	job     Job
	nextRun time.Time
	locked  bool
	skipped int
	runs    int
	history *JobHistory
}

// Registry holds per-job state keyed by job name; it is passed to the
// Scheduler explicitly so tests and processes never share it implicitly
// ⭐ SSOT: 작업 상태(nextRun, locked)는 레지스트리에만 저장
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*jobState
	locker  Locker
	lockTTL time.Duration
}

// NewRegistry creates a registry; locks go through locker and expire after lockTTL
func NewRegistry(locker Locker, lockTTL time.Duration) *Registry {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	return &Registry{
		jobs:    make(map[string]*jobState),
		locker:  locker,
		lockTTL: lockTTL,
	}
}

// Register adds a job; names are unique
func (r *Registry) Register(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered: %w", job.Name(), contracts.ErrInvalidArgument)
	}
	r.jobs[job.Name()] = &jobState{job: job, history: &JobHistory{}}
	return nil
}

// Job returns the registered job or ErrNotFound
func (r *Registry) Job(name string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", name, contracts.ErrNotFound)
	}
	return st.job, nil
}

// Names returns registered job names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TryLock acquires the job's named lock; ErrLockContention when held
func (r *Registry) TryLock(ctx context.Context, name string) error {
	if _, err := r.Job(name); err != nil {
		return err
	}

	ok, err := r.locker.TryLock(ctx, name, r.lockTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("job %s is still running: %w", name, contracts.ErrLockContention)
	}

	r.mu.Lock()
	r.jobs[name].locked = true
	r.mu.Unlock()
	return nil
}

// Unlock releases the job's lock
func (r *Registry) Unlock(ctx context.Context, name string) error {
	r.mu.Lock()
	if st, ok := r.jobs[name]; ok {
		st.locked = false
	}
	r.mu.Unlock()

	return r.locker.Unlock(ctx, name)
}

// SetNextRun records the next scheduled firing
func (r *Registry) SetNextRun(name string, next time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.jobs[name]; ok {
		st.nextRun = next
	}
}

// Record appends a result to the job history
func (r *Registry) Record(result JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.jobs[result.JobName]
	if !ok {
		return
	}
	if result.Skipped {
		st.skipped++
	} else {
		st.runs++
	}
	st.history.AddResult(result)
}

// History returns the latest n results of a job
func (r *Registry) History(name string, n int) ([]JobResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", name, contracts.ErrNotFound)
	}
	return st.history.GetLatestResults(n), nil
}

// Status returns the introspection view of one job
func (r *Registry) Status(name string) (JobStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.jobs[name]
	if !ok {
		return JobStatus{}, fmt.Errorf("job %s: %w", name, contracts.ErrNotFound)
	}

	status := JobStatus{
		Name:        name,
		Schedule:    st.job.Schedule(),
		IsRunning:   st.locked,
		SkippedRuns: st.skipped,
		TotalRuns:   st.runs,
		SuccessRate: st.history.GetSuccessRate(),
	}
	if !st.nextRun.IsZero() {
		next := st.nextRun
		status.NextRun = &next
	}

	// 마지막 실제 실행 (건너뜀 제외)
	for i := len(st.history.Results) - 1; i >= 0; i-- {
		res := st.history.Results[i]
		if res.Skipped {
			continue
		}
		start := res.StartTime
		status.LastRun = &start
		status.LastError = res.Error
		break
	}
	return status, nil
}

// List returns the status of every job, sorted by name
func (r *Registry) List() []JobStatus {
	names := r.Names()
	out := make([]JobStatus, 0, len(names))
	for _, name := range names {
		if st, err := r.Status(name); err == nil {
			out = append(out, st)
		}
	}
	return out
}

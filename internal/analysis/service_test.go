package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/scoring"
	"github.com/wonny/alphalens/pkg/logger"
)

// ---- fakes ----

type fakeInstruments struct {
	items map[string]contracts.Instrument
}

func newFakeInstruments(symbols ...string) *fakeInstruments {
	f := &fakeInstruments{items: make(map[string]contracts.Instrument)}
	for _, s := range symbols {
		f.items[s] = contracts.Instrument{Symbol: s, Name: "name-" + s, Active: true}
	}
	return f
}

func (f *fakeInstruments) FindInstrument(ctx context.Context, symbol string) (*contracts.Instrument, error) {
	inst, ok := f.items[symbol]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", symbol, contracts.ErrNotFound)
	}
	return &inst, nil
}

func (f *fakeInstruments) ListActive(ctx context.Context) ([]contracts.Instrument, error) {
	var out []contracts.Instrument
	for _, i := range f.items {
		if i.Active {
			out = append(out, i)
		}
	}
	return out, nil
}

type fakeSource struct {
	mu          sync.Mutex
	fail        map[string]error // GetHistoricalBars error per symbol
	panics      map[string]bool  // GetRecentNews panics per symbol
	gate        chan struct{}    // blocks GetHistoricalBars when non-nil
	barRequests int
}

func newFakeSource() *fakeSource {
	return &fakeSource{fail: make(map[string]error), panics: make(map[string]bool)}
}

func testBars(n int) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + float64(i)*0.5
		bars[i] = contracts.Bar{Date: day.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func (f *fakeSource) GetLatestQuote(ctx context.Context, symbol string) (*contracts.Quote, error) {
	return &contracts.Quote{Symbol: symbol, Price: 230}, nil
}

func (f *fakeSource) GetHistoricalBars(ctx context.Context, symbol string, days int) ([]contracts.Bar, error) {
	f.mu.Lock()
	f.barRequests++
	gate := f.gate
	err := f.fail[symbol]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return testBars(260), nil
}

func (f *fakeSource) GetRecentNews(ctx context.Context, symbol string) ([]contracts.NewsItem, error) {
	f.mu.Lock()
	p := f.panics[symbol]
	f.mu.Unlock()
	if p {
		panic("news parser exploded")
	}
	return []contracts.NewsItem{{Title: "record profit"}}, nil
}

func (f *fakeSource) GetFundamentals(ctx context.Context, symbol string) (*contracts.Fundamentals, error) {
	return &contracts.Fundamentals{PE: contracts.Float(12), ROE: contracts.Float(16)}, nil
}

func (f *fakeSource) GetMarketContext(ctx context.Context, symbol string) (*contracts.MarketContext, error) {
	return nil, fmt.Errorf("no market context: %w", contracts.ErrDataUnavailable)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, userID string, task *contracts.AnalysisTask) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID+":"+task.ID)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// ---- helpers ----

type harness struct {
	svc      *Service
	repo     *MemoryRepository
	source   *fakeSource
	notifier *fakeNotifier
}

func newHarness(t *testing.T, opts Options, symbols ...string) *harness {
	t.Helper()
	if len(symbols) == 0 {
		symbols = []string{"005930", "000660"}
	}
	log := logger.NewNop()
	h := &harness{
		repo:     NewMemoryRepository(),
		source:   newFakeSource(),
		notifier: &fakeNotifier{},
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = time.Millisecond
	}
	h.svc = NewService(h.repo, newFakeInstruments(symbols...), h.source,
		analyzers.NewSuite(log), scoring.NewEngine(nil, log), h.notifier, opts, log)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

// newPeer builds a second orchestrator on the same task store, the way another
// process sharing the database would see it
func newPeer(t *testing.T, h *harness, opts Options) *harness {
	t.Helper()
	log := logger.NewNop()
	p := &harness{
		repo:     h.repo,
		source:   newFakeSource(),
		notifier: &fakeNotifier{},
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = time.Millisecond
	}
	p.svc = NewService(p.repo, h.svc.instruments, p.source,
		analyzers.NewSuite(log), scoring.NewEngine(nil, log), p.notifier, opts, log)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.svc.Shutdown(ctx)
	})
	return p
}

func (h *harness) waitProcessing(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		cur, err := h.repo.FindTask(context.Background(), id)
		return err == nil && cur.State == contracts.StateProcessing
	}, 2*time.Second, 2*time.Millisecond)
}

func (h *harness) wait(t *testing.T, id string) *contracts.AnalysisTask {
	t.Helper()
	task, err := h.svc.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	return task
}

// ---- tests ----

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, Options{})
	h.svc.instruments.(*fakeInstruments).items["DELISTED"] = contracts.Instrument{Symbol: "DELISTED", Active: false}
	ctx := context.Background()

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{"unknown symbol", CreateRequest{Symbol: "NOPE"}, contracts.ErrNotFound},
		{"inactive symbol", CreateRequest{Symbol: "DELISTED"}, contracts.ErrNotFound},
		{"empty symbol", CreateRequest{}, contracts.ErrInvalidArgument},
		{"bad kind", CreateRequest{Symbol: "005930", Kind: "astrology"}, contracts.ErrInvalidArgument},
		{"bad range", CreateRequest{Symbol: "005930", TimeRange: "10y"}, contracts.ErrInvalidArgument},
		{"bad priority", CreateRequest{Symbol: "005930", Priority: "urgent"}, contracts.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := h.svc.Create(ctx, tt.req)
			assert.Nil(t, task)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_RunsToCompletion(t *testing.T) {
	h := newHarness(t, Options{})

	task, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930", RequesterID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatePending, task.State)
	assert.Equal(t, 0, task.Progress)
	assert.Equal(t, contracts.KindComprehensive, task.Kind)
	assert.Equal(t, contracts.PriorityNormal, task.Priority)

	final := h.wait(t, task.ID)
	assert.Equal(t, contracts.StateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, contracts.RecommendationFor(final.Result.OverallRating), final.Result.Recommendation)
	assert.Equal(t, contracts.RiskLevelFor(final.Result.OverallRating), final.Result.RiskLevel)
	assert.Equal(t, 230.0, final.Result.CurrentPrice)
	assert.False(t, final.Result.Fallback)

	assert.Eventually(t, func() bool { return h.notifier.count() == 1 }, time.Second, 5*time.Millisecond)

	latest, err := h.svc.LatestResult(context.Background(), "005930", contracts.KindComprehensive)
	require.NoError(t, err)
	assert.Equal(t, final.Result.OverallRating, latest.OverallRating)
}

func TestConcurrentTasks_OneFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.fail["000660"] = errors.New("provider returned malformed payload")
	ctx := context.Background()

	good, err := h.svc.Create(ctx, CreateRequest{Symbol: "005930"})
	require.NoError(t, err)
	bad, err := h.svc.Create(ctx, CreateRequest{Symbol: "000660"})
	require.NoError(t, err)

	goodFinal := h.wait(t, good.ID)
	badFinal := h.wait(t, bad.ID)

	assert.Equal(t, contracts.StateCompleted, goodFinal.State)
	assert.Equal(t, 100, goodFinal.Progress)

	assert.Equal(t, contracts.StateFailed, badFinal.State)
	assert.Equal(t, 0, badFinal.Progress)
	assert.Contains(t, badFinal.Error, "malformed payload")
	assert.Contains(t, badFinal.Error, contracts.ErrExecutionFailure.Error())
	assert.Nil(t, badFinal.Result)
}

func TestExecute_DataUnavailableFallsBack(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.fail["005930"] = fmt.Errorf("provider down, no cache: %w", contracts.ErrDataUnavailable)

	task, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930"})
	require.NoError(t, err)

	final := h.wait(t, task.ID)
	assert.Equal(t, contracts.StateCompleted, final.State)
	require.NotNil(t, final.Result)
	assert.True(t, final.Result.Fallback)
	assert.Equal(t, 5.0, final.Result.OverallRating)
	assert.Equal(t, contracts.Hold, final.Result.Recommendation)
	assert.Equal(t, contracts.RiskMedium, final.Result.RiskLevel)
	assert.Equal(t, 50, final.Result.ConfidenceLevel)
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.panics["005930"] = true

	task, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930"})
	require.NoError(t, err)

	final := h.wait(t, task.ID)
	assert.Equal(t, contracts.StateFailed, final.State)
	assert.Equal(t, 0, final.Progress)
	assert.Contains(t, final.Error, "news parser exploded")
}

func TestExecute_NoOpWhenNotPending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	task, err := h.svc.Create(ctx, CreateRequest{Symbol: "005930"})
	require.NoError(t, err)
	final := h.wait(t, task.ID)

	h.source.mu.Lock()
	before := h.source.barRequests
	h.source.mu.Unlock()

	again, err := h.svc.Execute(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, final.State, again.State)
	assert.Equal(t, final.Result.OverallRating, again.Result.OverallRating)

	h.source.mu.Lock()
	assert.Equal(t, before, h.source.barRequests)
	h.source.mu.Unlock()
}

func TestNotifyFailureKeepsCompleted(t *testing.T) {
	h := newHarness(t, Options{})
	h.notifier.err = errors.New("smtp unreachable")

	task, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930", RequesterID: "u1"})
	require.NoError(t, err)

	final := h.wait(t, task.ID)
	assert.Equal(t, contracts.StateCompleted, final.State)

	assert.Eventually(t, func() bool { return h.notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	stored, err := h.svc.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCompleted, stored.State)
	assert.Equal(t, 100, stored.Progress)
}

func TestCancel_Pending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// 미배정 pending 태스크
	task, err := h.svc.create(ctx, CreateRequest{Symbol: "005930", RequesterID: "owner"})
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, task.ID, "intruder")
	assert.ErrorIs(t, err, contracts.ErrPermissionDenied)

	cancelled, err := h.svc.Cancel(ctx, task.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, cancelled.State)
	assert.Equal(t, 0, cancelled.Progress)

	// terminal → InvalidState, 상태 불변
	_, err = h.svc.Cancel(ctx, task.ID, "owner")
	assert.ErrorIs(t, err, contracts.ErrInvalidState)

	stored, err := h.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, stored.State)

	// 취소된 태스크는 실행되지 않음
	again, err := h.svc.Execute(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, again.State)

	_, err = h.svc.Cancel(ctx, "missing", "owner")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestCancel_TerminalStates(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.fail["000660"] = errors.New("boom")
	ctx := context.Background()

	done, err := h.svc.Create(ctx, CreateRequest{Symbol: "005930", RequesterID: "u"})
	require.NoError(t, err)
	failed, err := h.svc.Create(ctx, CreateRequest{Symbol: "000660", RequesterID: "u"})
	require.NoError(t, err)

	for _, id := range []string{done.ID, failed.ID} {
		before := h.wait(t, id)

		_, err := h.svc.Cancel(ctx, id, "u")
		assert.ErrorIs(t, err, contracts.ErrInvalidState)

		after, err := h.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.State, after.State)
		assert.Equal(t, before.Progress, after.Progress)
	}
}

func TestCancel_ProcessingFreezesProgress(t *testing.T) {
	h := newHarness(t, Options{ProgressInterval: time.Hour})
	gate := make(chan struct{})
	h.source.gate = gate
	ctx := context.Background()

	task, err := h.svc.Create(ctx, CreateRequest{Symbol: "005930", RequesterID: "u"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := h.svc.Get(ctx, task.ID)
		return err == nil && cur.State == contracts.StateProcessing
	}, 2*time.Second, 2*time.Millisecond)

	cancelled, err := h.svc.Cancel(ctx, task.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, cancelled.State)
	assert.Equal(t, 10, cancelled.Progress)

	close(gate)

	final := h.wait(t, task.ID)
	assert.Equal(t, contracts.StateCancelled, final.State)
	assert.Equal(t, 10, final.Progress)
	assert.Nil(t, final.Result)

	// 파이프라인 종료 후에도 기록 불변
	require.NoError(t, h.svc.Shutdown(context.Background()))
	stored, err := h.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, stored.State)
	assert.Equal(t, 10, stored.Progress)
	assert.Equal(t, 0, h.notifier.count())
}

func TestProgress_Monotonic(t *testing.T) {
	h := newHarness(t, Options{ProgressInterval: time.Millisecond})
	gate := make(chan struct{})
	h.source.gate = gate
	ctx := context.Background()

	task, err := h.svc.create(ctx, CreateRequest{Symbol: "005930"})
	require.NoError(t, err)

	updates, unsubscribe := h.svc.Subscribe(task.ID)
	defer unsubscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()

	final, err := h.svc.Execute(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)

	last := 0
	for {
		select {
		case u := <-updates:
			if u.State == contracts.StateProcessing {
				assert.GreaterOrEqual(t, u.Progress, last)
				assert.Less(t, u.Progress, 100)
				last = u.Progress
			}
			if u.State == contracts.StateCompleted {
				assert.Equal(t, 100, u.Progress)
			}
		default:
			assert.GreaterOrEqual(t, last, 10)
			return
		}
	}
}

func TestWait_Timeout(t *testing.T) {
	h := newHarness(t, Options{})
	gate := make(chan struct{})
	h.source.gate = gate
	defer close(gate)

	task, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930"})
	require.NoError(t, err)

	cur, err := h.svc.Wait(context.Background(), task.ID, 30*time.Millisecond)
	assert.ErrorIs(t, err, contracts.ErrWaitTimeout)
	require.NotNil(t, cur)
	assert.False(t, cur.State.IsTerminal())
}

func TestRunBatch_Isolation(t *testing.T) {
	h := newHarness(t, Options{Workers: 2}, "A", "B", "C")
	h.source.fail["B"] = errors.New("timeout talking to provider")

	results := h.svc.RunBatch(context.Background(), []string{"A", "B", "C", "ZZZ"}, contracts.KindComprehensive, "scheduler")
	require.Len(t, results, 4)

	assert.Equal(t, "A", results[0].Symbol)
	assert.True(t, results[0].OK())
	assert.NotZero(t, results[0].Rating)

	assert.Equal(t, "B", results[1].Symbol)
	assert.Equal(t, contracts.StateFailed, results[1].State)
	assert.Contains(t, results[1].Error, "timeout talking to provider")

	assert.Equal(t, "C", results[2].Symbol)
	assert.True(t, results[2].OK())

	assert.Equal(t, "ZZZ", results[3].Symbol)
	assert.False(t, results[3].OK())
	assert.Empty(t, results[3].TaskID)
	assert.Contains(t, results[3].Error, "not found")
}

func TestRecoverStale(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	old := time.Now().Add(-3 * time.Hour)

	orphan := &contracts.AnalysisTask{
		ID: "orphan", Symbol: "005930", Kind: contracts.KindComprehensive, TimeRange: contracts.Range6M,
		Priority: contracts.PriorityNormal, State: contracts.StateProcessing, Progress: 45,
		CreatedAt: old, StartedAt: &old,
	}
	stranded := &contracts.AnalysisTask{
		ID: "stranded", Symbol: "000660", Kind: contracts.KindComprehensive, TimeRange: contracts.Range6M,
		Priority: contracts.PriorityNormal, State: contracts.StatePending, CreatedAt: old,
	}
	require.NoError(t, h.repo.SaveTask(ctx, orphan))
	require.NoError(t, h.repo.SaveTask(ctx, stranded))

	failed, requeued, err := h.svc.RecoverStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, requeued)

	got, err := h.svc.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateFailed, got.State)
	assert.Equal(t, 0, got.Progress)
	assert.NotEmpty(t, got.Error)

	final := h.wait(t, "stranded")
	assert.Equal(t, contracts.StateCompleted, final.State)
}

func TestRecoverStale_LiveOwnerInAnotherProcess(t *testing.T) {
	owner := newHarness(t, Options{HeartbeatInterval: 5 * time.Millisecond})
	gate := make(chan struct{})
	owner.source.gate = gate
	peer := newPeer(t, owner, Options{HeartbeatInterval: 5 * time.Millisecond, StaleAfter: 300 * time.Millisecond})
	ctx := context.Background()

	task, err := owner.svc.Create(ctx, CreateRequest{Symbol: "005930", RequesterID: "u"})
	require.NoError(t, err)
	owner.waitProcessing(t, task.ID)

	// 시작 시각은 StaleAfter를 넘겼지만 heartbeat는 계속 갱신됨
	time.Sleep(400 * time.Millisecond)

	for _, olderThan := range []time.Duration{0, time.Millisecond} {
		failed, requeued, err := peer.svc.RecoverStale(ctx, olderThan)
		require.NoError(t, err)
		assert.Equal(t, 0, failed)
		assert.Equal(t, 0, requeued)
	}

	close(gate)
	final := owner.wait(t, task.ID)
	assert.Equal(t, contracts.StateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
}

func TestRecoverStale_DeadOwnerCannotOverwrite(t *testing.T) {
	owner := newHarness(t, Options{ProgressInterval: time.Hour, HeartbeatInterval: time.Hour})
	gate := make(chan struct{})
	owner.source.gate = gate
	peer := newPeer(t, owner, Options{HeartbeatInterval: time.Millisecond, StaleAfter: 10 * time.Millisecond})
	ctx := context.Background()

	task, err := owner.svc.create(ctx, CreateRequest{Symbol: "005930", RequesterID: "u"})
	require.NoError(t, err)

	finished := make(chan *contracts.AnalysisTask, 1)
	go func() {
		final, _ := owner.svc.Execute(ctx, task.ID)
		finished <- final
	}()
	owner.waitProcessing(t, task.ID)

	// heartbeat가 멈춘 소유자
	time.Sleep(30 * time.Millisecond)
	failed, _, err := peer.svc.RecoverStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// 소유자가 뒤늦게 진행해도 terminal 기록은 유지
	close(gate)
	select {
	case final := <-finished:
		require.NotNil(t, final)
		assert.Equal(t, contracts.StateFailed, final.State)
	case <-time.After(2 * time.Second):
		t.Fatal("owner did not stop")
	}

	stored, err := owner.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateFailed, stored.State)
	assert.Equal(t, 0, stored.Progress)
	assert.Contains(t, stored.Error, "abandoned")
	assert.Nil(t, stored.Result)
	assert.Equal(t, 0, owner.notifier.count())
}

func TestCancel_TaskRunningInAnotherProcess(t *testing.T) {
	owner := newHarness(t, Options{ProgressInterval: time.Hour})
	gate := make(chan struct{})
	owner.source.gate = gate
	peer := newPeer(t, owner, Options{})
	ctx := context.Background()

	task, err := owner.svc.Create(ctx, CreateRequest{Symbol: "005930", RequesterID: "u"})
	require.NoError(t, err)
	owner.waitProcessing(t, task.ID)

	_, err = peer.svc.Cancel(ctx, task.ID, "intruder")
	assert.ErrorIs(t, err, contracts.ErrPermissionDenied)

	cancelled, err := peer.svc.Cancel(ctx, task.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, cancelled.State)
	assert.Equal(t, 10, cancelled.Progress)

	close(gate)
	require.NoError(t, owner.svc.Shutdown(ctx))

	stored, err := owner.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateCancelled, stored.State)
	assert.Equal(t, 10, stored.Progress)
	assert.Nil(t, stored.Result)
	assert.Equal(t, 0, owner.notifier.count())
}

func TestExecute_ClaimedByAnotherProcess(t *testing.T) {
	h := newHarness(t, Options{})
	peer := newPeer(t, h, Options{})
	gate := make(chan struct{})
	peer.source.gate = gate
	ctx := context.Background()

	task, err := h.svc.create(ctx, CreateRequest{Symbol: "005930"})
	require.NoError(t, err)

	finished := make(chan *contracts.AnalysisTask, 1)
	go func() {
		final, _ := peer.svc.Execute(ctx, task.ID)
		finished <- final
	}()
	h.waitProcessing(t, task.ID)

	got, err := h.svc.Execute(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateProcessing, got.State)

	h.source.mu.Lock()
	assert.Equal(t, 0, h.source.barRequests)
	h.source.mu.Unlock()

	close(gate)
	select {
	case final := <-finished:
		require.NotNil(t, final)
		assert.Equal(t, contracts.StateCompleted, final.State)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not finish")
	}
}

func TestPurge(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	task, err := h.svc.Create(ctx, CreateRequest{Symbol: "005930"})
	require.NoError(t, err)
	h.wait(t, task.ID)

	n, err := h.svc.Purge(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = h.svc.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = h.svc.Get(ctx, task.ID)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestShutdown_WaitsForBatch(t *testing.T) {
	h := newHarness(t, Options{})
	gate := make(chan struct{})
	h.source.gate = gate
	ctx := context.Background()

	results := make(chan []BatchResult, 1)
	go func() {
		results <- h.svc.RunBatch(ctx, []string{"005930"}, contracts.KindComprehensive, "scheduler")
	}()
	require.Eventually(t, func() bool {
		tasks, err := h.repo.ListByState(ctx, contracts.StateProcessing)
		return err == nil && len(tasks) == 1
	}, 2*time.Second, 2*time.Millisecond)

	sctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.svc.Shutdown(sctx), context.DeadlineExceeded)

	// 강제 종료는 배치 파이프라인도 취소
	select {
	case res := <-results:
		require.Len(t, res, 1)
		assert.Equal(t, contracts.StateFailed, res[0].State)
		assert.Contains(t, res[0].Error, "context canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop")
	}
	require.NoError(t, h.svc.Shutdown(ctx))

	res := h.svc.RunBatch(ctx, []string{"005930"}, contracts.KindComprehensive, "scheduler")
	require.Len(t, res, 1)
	assert.Empty(t, res[0].TaskID)
	assert.Contains(t, res[0].Error, "shutting down")
}

func TestShutdown_RejectsNewTasks(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.svc.Shutdown(context.Background()))

	_, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "005930"})
	assert.ErrorIs(t, err, contracts.ErrInvalidState)
}

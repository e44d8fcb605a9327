package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/circuitbreaker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
	"github.com/bloomreach/shopify-to-bloomreach/internal/metrics"
)

type fakeStore struct {
	mu     sync.Mutex
	states map[string]domain.RunState

	acquireErr error
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]domain.RunState)}
}

func (f *fakeStore) Get(key string) (domain.RunState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[key]
	return st, ok
}

func (f *fakeStore) Acquire(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	st := f.states[key]
	if st.IsRunning {
		return false, nil
	}
	st.IsRunning = true
	f.states[key] = st
	return true, nil
}

func (f *fakeStore) ForceAcquire(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[key]
	st.IsRunning = true
	f.states[key] = st
	return nil
}

func (f *fakeStore) SetRunning(key string, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[key]
	st.IsRunning = running
	f.states[key] = st
	return nil
}

func (f *fakeStore) UpdateLastSuccessfulRun(key string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	t := ts.UTC()
	f.states[key] = domain.RunState{LastSuccessfulRun: &t, IsRunning: false}
	return nil
}

type launchCall struct {
	cfg       domain.RunConfig
	startDate time.Time
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []launchCall
	err     error
	delay   time.Duration
	running bool

	hasRunningErr error

	// advance lets a launch move the runner's clock, simulating slow dispatch.
	advance func(d time.Duration)
}

func (f *fakeDispatcher) LaunchDelta(ctx context.Context, cfg domain.RunConfig, startDate time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advance != nil && f.delay > 0 {
		f.advance(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, launchCall{cfg: cfg, startDate: startDate})
	return "dish-job-1", nil
}

func (f *fakeDispatcher) HasRunning(ctx context.Context, catalogKey string) (bool, error) {
	if f.hasRunningErr != nil {
		return false, f.hasRunningErr
	}
	return f.running, nil
}

func (f *fakeDispatcher) launches() []launchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]launchCall(nil), f.calls...)
}

type capturedEvents struct {
	mu     sync.Mutex
	events []domain.RunEvent
}

func (c *capturedEvents) TryEmit(event domain.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) all() []domain.RunEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.RunEvent(nil), c.events...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSchedule() domain.DeltaSchedule {
	return domain.DeltaSchedule{
		ShopifyURL:    "test-shop.myshopify.com",
		ShopifyToken:  "shpat_test",
		BREnvironment: "staging",
		BRAccountID:   "6702",
		BRCatalog:     "test-catalog",
		BRAPIToken:    "br-token",
		Interval:      domain.Every15Minutes,
	}
}

func TestRunDeltaFirstRunWindow(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	clock := &testClock{now: time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)}

	r := New(store, dispatcher)
	r.clock = clock.Now

	if err := r.RunDelta(context.Background(), "task-1", testSchedule()); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}

	calls := dispatcher.launches()
	if len(calls) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(calls))
	}
	want := time.Date(2025, 7, 16, 9, 44, 30, 0, time.UTC)
	if !calls[0].startDate.Equal(want) {
		t.Errorf("window start = %s, want %s", calls[0].startDate.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestRunDeltaSubsequentWindowOverlapsLastRun(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	last := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	store.states[sched.CatalogKey()] = domain.RunState{LastSuccessfulRun: &last}

	dispatcher := &fakeDispatcher{}
	clock := &testClock{now: time.Date(2025, 7, 16, 10, 15, 0, 0, time.UTC)}

	r := New(store, dispatcher)
	r.clock = clock.Now

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}

	calls := dispatcher.launches()
	if len(calls) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(calls))
	}
	want := time.Date(2025, 7, 16, 9, 59, 30, 0, time.UTC)
	if !calls[0].startDate.Equal(want) {
		t.Errorf("window start = %s, want %s", calls[0].startDate.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestRunDeltaPersistsTickStartNotCompletion(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	clock := &testClock{now: time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)}
	dispatcher := &fakeDispatcher{delay: 45 * time.Second, advance: clock.Advance}

	r := New(store, dispatcher)
	r.clock = clock.Now

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}

	st, ok := store.Get(sched.CatalogKey())
	if !ok || st.LastSuccessfulRun == nil {
		t.Fatal("expected last successful run to be recorded")
	}
	want := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	if !st.LastSuccessfulRun.Equal(want) {
		t.Errorf("last successful run = %s, want tick start %s",
			st.LastSuccessfulRun.Format(time.RFC3339), want.Format(time.RFC3339))
	}
	if st.IsRunning {
		t.Error("running flag should be cleared after successful launch")
	}
}

func TestRunDeltaLaunchFailureLeavesStateUntouched(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	last := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	store.states[sched.CatalogKey()] = domain.RunState{LastSuccessfulRun: &last}

	dispatcher := &fakeDispatcher{err: errors.New("image pull failed")}
	events := &capturedEvents{}

	r := New(store, dispatcher).WithEvents(events)
	r.clock = func() time.Time { return time.Date(2025, 7, 16, 10, 15, 0, 0, time.UTC) }

	if err := r.RunDelta(context.Background(), "task-1", sched); err == nil {
		t.Fatal("RunDelta() expected error")
	}

	st, _ := store.Get(sched.CatalogKey())
	if st.LastSuccessfulRun == nil || !st.LastSuccessfulRun.Equal(last) {
		t.Error("last successful run must not advance on launch failure")
	}
	if st.IsRunning {
		t.Error("running flag must be cleared on launch failure")
	}

	evs := events.all()
	if len(evs) != 1 || evs[0].Outcome != domain.RunLaunchFailed {
		t.Fatalf("expected one launch_failed event, got %+v", evs)
	}
}

func TestRunDeltaSkipsWhenAlreadyRunning(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	store.states[sched.CatalogKey()] = domain.RunState{IsRunning: true}

	dispatcher := &fakeDispatcher{running: true}
	events := &capturedEvents{}

	r := New(store, dispatcher).WithEvents(events)

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("overlapping tick must be a no-op, got error %v", err)
	}
	if len(dispatcher.launches()) != 0 {
		t.Error("no launch expected while a run is in flight")
	}
	st, _ := store.Get(sched.CatalogKey())
	if !st.IsRunning {
		t.Error("running flag of the in-flight run must stay set")
	}
	evs := events.all()
	if len(evs) != 1 || evs[0].Outcome != domain.RunSkipped || evs[0].Reason != metrics.ReasonRuntimeBusy {
		t.Fatalf("expected one skipped event, got %+v", evs)
	}
}

func TestRunDeltaReclaimsStaleRunningFlag(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	last := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	store.states[sched.CatalogKey()] = domain.RunState{LastSuccessfulRun: &last, IsRunning: true}

	// Flag says running but the runtime is idle: a crash left the flag stuck.
	dispatcher := &fakeDispatcher{running: false}

	r := New(store, dispatcher)
	r.clock = func() time.Time { return time.Date(2025, 7, 16, 10, 15, 0, 0, time.UTC) }

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}
	if len(dispatcher.launches()) != 1 {
		t.Fatal("expected the stale flag to be reclaimed and the run launched")
	}
}

func TestRunDeltaKeepsSkipWhenRuntimeCheckFails(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	store.states[sched.CatalogKey()] = domain.RunState{IsRunning: true}

	dispatcher := &fakeDispatcher{hasRunningErr: errors.New("docker daemon unreachable")}

	r := New(store, dispatcher)

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}
	if len(dispatcher.launches()) != 0 {
		t.Error("must not launch when the runtime state cannot be confirmed")
	}
}

func TestRunDeltaCircuitOpenSkips(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	events := &capturedEvents{}

	cb := circuitbreaker.New(1, time.Hour)
	cb.RecordFailure(sched.CatalogKey())

	r := New(store, dispatcher).WithBreaker(cb).WithEvents(events)

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}
	if len(dispatcher.launches()) != 0 {
		t.Error("no launch expected while the circuit is open")
	}
	evs := events.all()
	if len(evs) != 1 || evs[0].Reason != metrics.ReasonCircuitOpen {
		t.Fatalf("expected circuit_open skip event, got %+v", evs)
	}
}

func TestRunDeltaEmitsLaunchedEvent(t *testing.T) {
	sched := testSchedule()
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	events := &capturedEvents{}

	r := New(store, dispatcher).WithEvents(events)
	r.clock = func() time.Time { return time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC) }

	if err := r.RunDelta(context.Background(), "task-1", sched); err != nil {
		t.Fatalf("RunDelta() error = %v", err)
	}

	evs := events.all()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Outcome != domain.RunLaunched || ev.JobName != "dish-job-1" || ev.TaskID != "task-1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.WindowStart.IsZero() {
		t.Error("launched event must carry the window start")
	}
}

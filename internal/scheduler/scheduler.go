// Package scheduler maintains the registry of recurring delta tasks and
// fires them on their cron cadence.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

var ErrTaskNotFound = errors.New("task not found")

// TickRunner executes one delta run tick for a schedule.
type TickRunner interface {
	RunDelta(ctx context.Context, taskID string, sched domain.DeltaSchedule) error
}

// StateReader exposes persisted run state for task listings.
type StateReader interface {
	Get(key string) (domain.RunState, bool)
}

// Task is a registered recurring delta sync.
type Task struct {
	ID         string
	Schedule   domain.DeltaSchedule
	CatalogKey string
	CreatedAt  time.Time

	NextRun           time.Time
	LastSuccessfulRun *time.Time
	IsRunning         bool
}

type entry struct {
	schedule  domain.DeltaSchedule
	cronID    cron.EntryID
	createdAt time.Time
}

// Registry owns the cron engine and the task table. Registration and
// cancellation are safe to call concurrently with firing ticks.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]entry
	cron    *cron.Cron
	runner  TickRunner
	states  StateReader // optional, nil = listings omit run state
	clock   func() time.Time
	baseCtx context.Context
}

// New creates a Registry. Ticks run in UTC; a panicking tick is recovered
// and logged rather than taking down the scheduler.
func New(runner TickRunner) *Registry {
	return &Registry{
		tasks: make(map[string]entry),
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		runner:  runner,
		clock:   time.Now,
		baseCtx: context.Background(),
	}
}

// WithStateReader attaches the run-state store so Tasks can report each
// catalog's last successful run and running flag.
func (r *Registry) WithStateReader(states StateReader) *Registry {
	r.states = states
	return r
}

// WithContext sets the context handed to each fired tick. Stored once at
// wiring time; cancelling it makes in-flight ticks abort.
func (r *Registry) WithContext(ctx context.Context) *Registry {
	r.baseCtx = ctx
	return r
}

// Start begins firing registered tasks. Safe to call before or after
// registrations.
func (r *Registry) Start() {
	r.cron.Start()
	log.Println("scheduler: started")
}

// Stop stops firing and waits for in-flight ticks to return.
func (r *Registry) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Println("scheduler: stopped")
}

// Register adds a recurring delta task and returns its task ID. Multiple
// tasks for the same catalog key are allowed; the runner's single-flight
// guard collapses their overlapping ticks.
func (r *Registry) Register(sched domain.DeltaSchedule) (string, error) {
	taskID := uuid.New().String()

	cronID, err := r.cron.AddFunc(sched.Interval.CronExpression(), func() {
		if err := r.runner.RunDelta(r.baseCtx, taskID, sched); err != nil {
			log.Printf("scheduler: task %s tick error: %v", taskID, err)
		}
	})
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.tasks[taskID] = entry{schedule: sched, cronID: cronID, createdAt: r.clock().UTC()}
	r.mu.Unlock()

	log.Printf("scheduler: registered task=%s catalog=%s interval=%s",
		taskID, sched.CatalogKey(), sched.Interval)
	return taskID, nil
}

// Cancel removes a task. Returns ErrTaskNotFound for unknown IDs; a run
// already in flight is not interrupted.
func (r *Registry) Cancel(taskID string) error {
	r.mu.Lock()
	e, ok := r.tasks[taskID]
	if ok {
		delete(r.tasks, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrTaskNotFound
	}
	r.cron.Remove(e.cronID)
	log.Printf("scheduler: cancelled task=%s catalog=%s", taskID, e.schedule.CatalogKey())
	return nil
}

// Tasks lists all registered tasks with their next fire time and, when a
// state store is attached, the catalog's persisted run state.
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.tasks))
	for id, e := range r.tasks {
		t := Task{
			ID:         id,
			Schedule:   e.schedule,
			CatalogKey: e.schedule.CatalogKey(),
			CreatedAt:  e.createdAt,
			NextRun:    r.cron.Entry(e.cronID).Next,
		}
		if r.states != nil {
			if st, ok := r.states.Get(t.CatalogKey); ok {
				t.LastSuccessfulRun = st.LastSuccessfulRun
				t.IsRunning = st.IsRunning
			}
		}
		out = append(out, t)
	}
	return out
}

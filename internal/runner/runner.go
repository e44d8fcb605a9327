// Package runner orchestrates one delta run per trigger tick: it enforces
// the single-flight guard, computes the time window, dispatches the run and
// records the outcome in the tracker.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/circuitbreaker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
	"github.com/bloomreach/shopify-to-bloomreach/internal/metrics"
)

// StateStore is the durable per-catalog run-state store.
type StateStore interface {
	Get(key string) (domain.RunState, bool)
	Acquire(key string) (bool, error)
	ForceAcquire(key string) error
	SetRunning(key string, running bool) error
	UpdateLastSuccessfulRun(key string, ts time.Time) error
}

// Dispatcher launches runs in the external runtime.
type Dispatcher interface {
	LaunchDelta(ctx context.Context, cfg domain.RunConfig, startDate time.Time) (string, error)
	HasRunning(ctx context.Context, catalogKey string) (bool, error)
}

// EventEmitter publishes run lifecycle events. Must not block.
type EventEmitter interface {
	TryEmit(event domain.RunEvent) error
}

// MetricsSink records orchestrator metrics; methods must not block.
type MetricsSink interface {
	TickStarted()
	RunLaunched(launchDuration time.Duration)
	RunSkipped(reason string)
	LaunchFailed()
}

// Runner drives delta runs. One Runner serves all catalogs; ticks for
// different catalogs may execute concurrently.
type Runner struct {
	tracker    StateStore
	dispatcher Dispatcher
	breaker    *circuitbreaker.CircuitBreaker // optional, nil = disabled
	events     EventEmitter                   // optional, nil = disabled
	metrics    MetricsSink                    // optional, nil = disabled
	clock      func() time.Time
}

// New creates a Runner.
func New(tracker StateStore, dispatcher Dispatcher) *Runner {
	return &Runner{
		tracker:    tracker,
		dispatcher: dispatcher,
		clock:      time.Now,
	}
}

// WithBreaker attaches a circuit breaker guarding dispatch per catalog key.
func (r *Runner) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Runner {
	r.breaker = cb
	return r
}

// WithEvents attaches a run-event emitter.
func (r *Runner) WithEvents(emitter EventEmitter) *Runner {
	r.events = emitter
	return r
}

// WithMetrics attaches a metrics sink.
func (r *Runner) WithMetrics(sink MetricsSink) *Runner {
	r.metrics = sink
	return r
}

// RunDelta executes one trigger tick for the schedule. Overlapping triggers
// for a slow catalog are expected: a tick that finds a run in flight is a
// logged no-op, not an error. A tick that fails to launch leaves the last
// successful run boundary untouched so the next tick retries the same or a
// wider window.
func (r *Runner) RunDelta(ctx context.Context, taskID string, sched domain.DeltaSchedule) error {
	key := sched.CatalogKey()
	now := r.clock().UTC()

	if r.metrics != nil {
		r.metrics.TickStarted()
	}

	if r.breaker != nil {
		if err := r.breaker.Allow(key); err != nil {
			log.Printf("runner: catalog=%s circuit open, skipping tick", key)
			r.skip(taskID, key, metrics.ReasonCircuitOpen, now)
			return nil
		}
	}

	if !r.acquire(ctx, taskID, key, now) {
		return nil
	}

	// The flag must never stay stuck: cleared here on every path that did
	// not launch, cleared by UpdateLastSuccessfulRun on the path that did.
	launched := false
	defer func() {
		if !launched {
			if err := r.tracker.SetRunning(key, false); err != nil {
				log.Printf("runner: catalog=%s failed to clear running flag: %v", key, err)
			}
		}
	}()

	state, _ := r.tracker.Get(key)
	start := windowStart(state.LastSuccessfulRun, sched.Interval.Duration(), now)

	log.Printf("runner: catalog=%s launching delta run window_start=%s",
		key, start.Format(time.RFC3339))

	jobName, err := r.dispatcher.LaunchDelta(ctx, sched.RunConfig(), start)
	if err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure(key)
		}
		if r.metrics != nil {
			r.metrics.LaunchFailed()
		}
		r.emit(domain.RunEvent{
			TaskID:      taskID,
			CatalogKey:  key,
			Outcome:     domain.RunLaunchFailed,
			WindowStart: start,
			Reason:      err.Error(),
			At:          now,
		})
		return fmt.Errorf("catalog %s: %w", key, err)
	}

	// Record the tick-start timestamp, not the completion time: the next
	// window must begin no later than where this run's coverage began,
	// even when dispatch itself was slow.
	if err := r.tracker.UpdateLastSuccessfulRun(key, now); err != nil {
		log.Printf("runner: catalog=%s launched %s but failed to persist state: %v", key, jobName, err)
	} else {
		launched = true
	}

	if r.breaker != nil {
		r.breaker.RecordSuccess(key)
	}
	if r.metrics != nil {
		r.metrics.RunLaunched(r.clock().UTC().Sub(now))
	}
	r.emit(domain.RunEvent{
		TaskID:      taskID,
		CatalogKey:  key,
		Outcome:     domain.RunLaunched,
		JobName:     jobName,
		WindowStart: start,
		At:          now,
	})

	log.Printf("runner: catalog=%s launched job=%s last_successful_run=%s",
		key, jobName, now.Format(time.RFC3339))
	return nil
}

// acquire takes the single-flight guard for the key. The guard is the AND
// of the persisted flag and the runtime's view: a flag left stuck by a
// crash is reclaimed once the runtime confirms nothing is running.
func (r *Runner) acquire(ctx context.Context, taskID, key string, now time.Time) bool {
	ok, err := r.tracker.Acquire(key)
	if err != nil {
		log.Printf("runner: catalog=%s failed to acquire run state: %v", key, err)
		r.skip(taskID, key, metrics.ReasonAlreadyRunning, now)
		return false
	}
	if ok {
		return true
	}

	running, err := r.dispatcher.HasRunning(ctx, key)
	if err != nil {
		// Cannot confirm either way; keep the conservative skip.
		log.Printf("runner: catalog=%s marked running, runtime check failed: %v", key, err)
		r.skip(taskID, key, metrics.ReasonAlreadyRunning, now)
		return false
	}
	if running {
		log.Printf("runner: catalog=%s run already in flight, skipping tick", key)
		r.skip(taskID, key, metrics.ReasonRuntimeBusy, now)
		return false
	}

	// Flag says running, runtime says idle: a previous process crashed
	// before clearing the flag. Reclaim the catalog.
	log.Printf("runner: catalog=%s stale running flag detected, reclaiming", key)
	if err := r.tracker.ForceAcquire(key); err != nil {
		log.Printf("runner: catalog=%s failed to reclaim: %v", key, err)
		r.skip(taskID, key, metrics.ReasonAlreadyRunning, now)
		return false
	}
	return true
}

func (r *Runner) skip(taskID, key, reason string, now time.Time) {
	if r.metrics != nil {
		r.metrics.RunSkipped(reason)
	}
	r.emit(domain.RunEvent{
		TaskID:     taskID,
		CatalogKey: key,
		Outcome:    domain.RunSkipped,
		Reason:     reason,
		At:         now,
	})
}

func (r *Runner) emit(event domain.RunEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.TryEmit(event); err != nil {
		log.Printf("runner: dropped %s event for catalog=%s: %v", event.Outcome, event.CatalogKey, err)
	}
}

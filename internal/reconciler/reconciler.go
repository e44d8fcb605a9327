// Package reconciler cleans up after finished and crashed runs.
//
// Two kinds of garbage accumulate over time: exited job containers that were
// never collected, and running flags left set by a process that died between
// launch and completion. The reconciler periodically removes old exited
// containers and clears running flags that no live container backs, so a
// crashed run never blocks its catalog forever.
package reconciler

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/docker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Runtime is the container-runtime surface the reconciler needs.
type Runtime interface {
	JobContainers(ctx context.Context) ([]docker.ContainerInfo, error)
	RemoveContainer(ctx context.Context, id string) error
}

// StateStore exposes the persisted run flags to heal.
type StateStore interface {
	Snapshot() map[string]domain.RunState
	SetRunning(key string, running bool) error
}

// MetricsSink records reconciler metrics; methods must not block.
type MetricsSink interface {
	ContainersRemoved(count int)
	StaleFlagCleared()
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Retention is how long an exited container is kept before removal,
	// so its logs stay inspectable for a while.
	// Default: 1 hour.
	Retention time.Duration
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Retention: time.Hour,
	}
}

// Reconciler removes old job containers and heals stale running flags.
type Reconciler struct {
	config  Config
	runtime Runtime
	tracker StateStore
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, runtime Runtime, tracker StateStore) *Reconciler {
	return &Reconciler{
		config:  config,
		runtime: runtime,
		tracker: tracker,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, retention=%s)",
		r.config.Interval, r.config.Retention)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()

	containers, err := r.runtime.JobContainers(ctx)
	if err != nil {
		// Runtime error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to list containers: %v", err)
		return
	}

	removed := r.removeExpired(ctx, containers, now)
	cleared := r.healStaleFlags(containers)

	if removed > 0 || cleared > 0 {
		log.Printf("reconciler: cycle complete, removed=%d, flags_cleared=%d", removed, cleared)
	}
}

// removeExpired deletes exited job containers older than the retention.
func (r *Reconciler) removeExpired(ctx context.Context, containers []docker.ContainerInfo, now time.Time) int {
	cutoff := now.Add(-r.config.Retention)
	removed := 0

	for _, c := range containers {
		if ctx.Err() != nil {
			return removed
		}
		if c.State == "running" || c.Created.After(cutoff) {
			continue
		}

		if err := r.runtime.RemoveContainer(ctx, c.ID); err != nil {
			// Log and continue - will retry next cycle.
			log.Printf("reconciler: failed to remove container %s: %v", c.Name, err)
			continue
		}

		log.Printf("reconciler: removed container %s (age=%s)",
			c.Name, now.Sub(c.Created).Round(time.Second))
		removed++
	}

	if removed > 0 && r.metrics != nil {
		r.metrics.ContainersRemoved(removed)
	}
	return removed
}

// healStaleFlags clears running flags for catalogs with no live container.
// The container listing was taken in the same cycle; a catalog whose flag is
// set but has no running container with its name prefix was abandoned by a
// crashed process.
func (r *Reconciler) healStaleFlags(containers []docker.ContainerInfo) int {
	cleared := 0

	for key, state := range r.tracker.Snapshot() {
		if !state.IsRunning {
			continue
		}
		if hasRunning(containers, key) {
			continue
		}

		if err := r.tracker.SetRunning(key, false); err != nil {
			log.Printf("reconciler: failed to clear running flag for catalog=%s: %v", key, err)
			continue
		}

		log.Printf("reconciler: cleared stale running flag for catalog=%s", key)
		if r.metrics != nil {
			r.metrics.StaleFlagCleared()
		}
		cleared++
	}
	return cleared
}

func hasRunning(containers []docker.ContainerInfo, catalogKey string) bool {
	prefix := docker.JobNamePrefix(catalogKey)
	for _, c := range containers {
		if c.State == "running" && strings.HasPrefix(c.Name, prefix) {
			return true
		}
	}
	return false
}

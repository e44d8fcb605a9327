package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Orchestrator metrics
	ticksTotal     prometheus.Counter
	launchesTotal  prometheus.Counter
	skipsTotal     *prometheus.CounterVec
	failuresTotal  prometheus.Counter
	launchDuration prometheus.Histogram

	// Dispatcher metrics
	retriesTotal prometheus.Counter

	// Reconciler metrics
	removedTotal    prometheus.Counter
	staleFlagsTotal prometheus.Counter

	// EventBus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register keep working locally; the failure is logged.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}

	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_runner_ticks_total",
		Help: "Total number of delta trigger ticks processed.",
	})
	s.launchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_runner_launches_total",
		Help: "Total number of delta run containers launched.",
	})
	s.skipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dish_runner_skips_total",
		Help: "Total number of ticks skipped, by reason.",
	}, []string{"reason"})
	s.failuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_runner_launch_failures_total",
		Help: "Total number of ticks that failed to launch a run.",
	})
	s.launchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dish_runner_launch_duration_seconds",
		Help:    "Time from tick start to runtime accepting the run.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_dispatcher_retries_total",
		Help: "Total number of dispatch retry attempts (excludes first attempt).",
	})
	s.removedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_reconciler_containers_removed_total",
		Help: "Total number of expired job containers removed.",
	})
	s.staleFlagsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_reconciler_stale_flags_cleared_total",
		Help: "Total number of stuck running flags cleared after crash detection.",
	})
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dish_eventbus_buffer_size",
		Help: "Current number of events in the run-event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dish_eventbus_emit_errors_total",
		Help: "Total number of run events dropped (buffer full).",
	})

	s.register(reg, s.ticksTotal, "dish_runner_ticks_total")
	s.register(reg, s.launchesTotal, "dish_runner_launches_total")
	s.register(reg, s.skipsTotal, "dish_runner_skips_total")
	s.register(reg, s.failuresTotal, "dish_runner_launch_failures_total")
	s.register(reg, s.launchDuration, "dish_runner_launch_duration_seconds")
	s.register(reg, s.retriesTotal, "dish_dispatcher_retries_total")
	s.register(reg, s.removedTotal, "dish_reconciler_containers_removed_total")
	s.register(reg, s.staleFlagsTotal, "dish_reconciler_stale_flags_cleared_total")
	s.register(reg, s.bufferSize, "dish_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "dish_eventbus_emit_errors_total")

	return s
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) RunLaunched(launchDuration time.Duration) {
	s.launchesTotal.Inc()
	s.launchDuration.Observe(launchDuration.Seconds())
}

func (s *PrometheusSink) RunSkipped(reason string) {
	s.skipsTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) LaunchFailed() {
	s.failuresTotal.Inc()
}

func (s *PrometheusSink) DispatchRetry() {
	s.retriesTotal.Inc()
}

func (s *PrometheusSink) ContainersRemoved(count int) {
	s.removedTotal.Add(float64(count))
}

func (s *PrometheusSink) StaleFlagCleared() {
	s.staleFlagsTotal.Inc()
}

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

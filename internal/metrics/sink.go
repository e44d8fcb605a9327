package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Orchestrator metrics
	TickStarted()
	RunLaunched(launchDuration time.Duration)
	RunSkipped(reason string)
	LaunchFailed()

	// Dispatcher metrics
	DispatchRetry()

	// Reconciler metrics
	ContainersRemoved(count int)
	StaleFlagCleared()

	// EventBus metrics
	BufferSizeUpdate(size int)
	EmitError()
}

// Skip reason constants for RunSkipped.
const (
	ReasonAlreadyRunning = "already_running"
	ReasonRuntimeBusy    = "runtime_busy"
	ReasonCircuitOpen    = "circuit_open"
)

package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                              {}
func (n *NoopSink) RunLaunched(launchDuration time.Duration)  {}
func (n *NoopSink) RunSkipped(reason string)                  {}
func (n *NoopSink) LaunchFailed()                             {}
func (n *NoopSink) DispatchRetry()                            {}
func (n *NoopSink) ContainersRemoved(count int)               {}
func (n *NoopSink) StaleFlagCleared()                         {}
func (n *NoopSink) BufferSizeUpdate(size int)                 {}
func (n *NoopSink) EmitError()                                {}

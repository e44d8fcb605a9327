package domain

import "time"

// RunOutcome classifies what happened on one trigger tick.
type RunOutcome string

const (
	RunLaunched     RunOutcome = "launched"
	RunSkipped      RunOutcome = "skipped"
	RunLaunchFailed RunOutcome = "launch_failed"
)

// RunEvent is emitted by the orchestrator after every trigger tick.
type RunEvent struct {
	TaskID     string
	CatalogKey string
	Outcome    RunOutcome

	JobName     string    // set when a container was launched
	WindowStart time.Time // zero for skipped ticks
	Reason      string    // skip reason or launch error

	At time.Time
}

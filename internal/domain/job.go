package domain

// JobStatus is the closed status vocabulary for dispatched runs. It is
// derived on demand from the runtime's native container status and never
// stored long-term.
type JobStatus string

const (
	JobStatusCreated JobStatus = "created"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Job describes one dispatched run as observed through the runtime.
type Job struct {
	Name   string
	Status JobStatus
	Log    string // best-effort, only populated when requested
}

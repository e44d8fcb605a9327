package domain

import "time"

// RunState is the per-catalog record persisted by the tracker. Absent until
// the first trigger fires for the catalog.
type RunState struct {
	LastSuccessfulRun *time.Time `json:"last_successful_run,omitempty"`
	IsRunning         bool       `json:"is_running"`
}

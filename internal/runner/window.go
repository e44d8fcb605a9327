package runner

import "time"

// SafetyOverlap is the fixed backward extension of every window start. It
// tolerates clock and visibility skew between a record being updated
// upstream and becoming extractable, at the cost of a little idempotent
// reprocessing.
const SafetyOverlap = 30 * time.Second

// windowStart computes the start of the next delta window. With no prior
// successful run the window covers one full interval plus the overlap;
// otherwise it reopens just before the last successful run boundary.
func windowStart(lastSuccessfulRun *time.Time, interval time.Duration, now time.Time) time.Time {
	if lastSuccessfulRun == nil {
		return now.Add(-interval).Add(-SafetyOverlap)
	}
	return lastSuccessfulRun.Add(-SafetyOverlap)
}

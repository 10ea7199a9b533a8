// Package timer schedules approval deadlines. A scheduled callback fires at
// most once and never after it was cancelled.
package timer

import "time"

// Service schedules keyed callbacks.
type Service interface {
	// Schedule arranges fn to run at deadline, replacing any callback
	// already scheduled under key.
	Schedule(key string, deadline time.Time, fn func())
	// Cancel drops the callback scheduled under key and reports whether one
	// was pending.
	Cancel(key string) bool
	// Stop cancels every pending callback.
	Stop()
}

// Key returns the timer key of a run step.
func Key(runID, stepID string) string {
	return runID + "/" + stepID
}

// Package clock provides the time sources used by the gate, the approval
// timers and run bookkeeping.
package clock

import (
	"sync"
	"time"
)

// Now returns the wall clock time.
func Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to. It is safe for concurrent
// use.
type Manual struct {
	mux sync.Mutex
	now time.Time
}

// NewManual creates a manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (m *Manual) Now() time.Time {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

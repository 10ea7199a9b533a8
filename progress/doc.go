// Package progress derives step counters from a run and notifies observers
// when they change. Counters are always recomputed from step statuses, never
// accumulated, so they cannot drift from the run they describe.
package progress

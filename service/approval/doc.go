// Package approval implements the approval gate: the state machine that owns
// every step status change. Human decisions (approve, reject), the timer
// (expire) and the executor (complete, fail) all go through the Gate, which
// validates the transition, records decisions in the audit sink before
// mutating state and publishes a Transition event afterwards.
//
// The Gate is not goroutine safe on its own; callers serialize transitions of
// one run, as the runtime does with a per-run lock.
package approval

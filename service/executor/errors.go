package executor

import "errors"

var (
	ErrNoOperation     = errors.New("step has no operation")
	ErrExecutorPanic   = errors.New("executor panicked")
	ErrSimulatedFailed = errors.New("simulated failure")
)

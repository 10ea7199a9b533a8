package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/fluxgate/model"
)

// Simulator pretends to run operations: it waits Delay and fails the steps
// listed in Fail. It is used by the command line tool to drive a run without
// touching real systems.
type Simulator struct {
	Delay time.Duration
	Fail  map[string]bool
}

// NewSimulator creates a simulator failing the given step ids.
func NewSimulator(delay time.Duration, fail ...string) *Simulator {
	ret := &Simulator{Delay: delay, Fail: map[string]bool{}}
	for _, id := range fail {
		ret.Fail[id] = true
	}
	return ret
}

// Execute implements Service.
func (s *Simulator) Execute(ctx context.Context, run *model.Run, step *model.Step) error {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Fail[step.ID] {
		return fmt.Errorf("%w: %s %s", ErrSimulatedFailed, step.Operation.Kind, step.Operation.Target)
	}
	return nil
}

// Package timeline walks the steps of a run in order. It decides which step
// is current and asks an activator to activate it; it never changes a step
// status itself.
package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/progress"
	"github.com/viant/fluxgate/service/approval"
)

// ErrRunHalted is returned by Advance once a step failed, was rejected or
// timed out, or the run was cancelled.
var ErrRunHalted = errors.New("run halted")

// Activator activates a pending step; *approval.Gate implements it.
type Activator interface {
	Activate(ctx context.Context, run *model.Run, stepID string) (*approval.Transition, error)
}

// Timeline orders the steps of one run.
type Timeline struct {
	run       *model.Run
	activator Activator
}

// New creates a timeline over run.
func New(run *model.Run, activator Activator) *Timeline {
	return &Timeline{run: run, activator: activator}
}

// CurrentStep returns the lowest-order step that is not terminal, or nil when
// every step is terminal.
func (t *Timeline) CurrentStep() *model.Step {
	for _, step := range t.run.Steps {
		if !step.Status.IsTerminal() {
			return step
		}
	}
	return nil
}

// Advance makes the current step eligible. A pending current step is
// activated; an already active one is returned as is. It returns nil, nil
// when the run is finished.
func (t *Timeline) Advance(ctx context.Context) (*model.Step, error) {
	if t.run.Halted() {
		return nil, fmt.Errorf("%w: %s", ErrRunHalted, t.haltReason())
	}
	step := t.CurrentStep()
	if step == nil {
		return nil, nil
	}
	if step.Status != model.StepPending {
		return step, nil
	}
	if _, err := t.activator.Activate(ctx, t.run, step.ID); err != nil {
		return nil, err
	}
	return step, nil
}

// Progress returns live counters of the run.
func (t *Timeline) Progress() progress.Progress {
	return progress.Of(t.run)
}

func (t *Timeline) haltReason() string {
	if t.run.Cancelled {
		return fmt.Sprintf("run %s was cancelled", t.run.ID)
	}
	for _, step := range t.run.Steps {
		if step.Status.IsHalting() {
			return fmt.Sprintf("run %s: step %s is %s", t.run.ID, step.ID, step.Status)
		}
	}
	return t.run.ID
}

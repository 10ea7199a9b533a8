package model

import (
	"fmt"
	"sort"
	"time"
)

// Run is an ordered collection of steps representing one workflow execution.
// The run exclusively owns its steps.
type Run struct {
	ID             string        `json:"id"`
	Name           string        `json:"name,omitempty"`
	Steps          []*Step       `json:"steps"`
	ApprovalWindow time.Duration `json:"approvalWindow,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	Cancelled      bool          `json:"cancelled,omitempty"`
}

// NewRun builds a run from steps, sorted by order. Step ids and orders must
// be unique.
func NewRun(id, name string, steps []*Step, approvalWindow time.Duration, createdAt time.Time) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("run id was empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("run %s has no steps", id)
	}
	ids := make(map[string]bool, len(steps))
	orders := make(map[int]bool, len(steps))
	for _, step := range steps {
		if step == nil {
			return nil, fmt.Errorf("run %s has a nil step", id)
		}
		if step.ID == "" {
			return nil, fmt.Errorf("run %s has a step without id", id)
		}
		if ids[step.ID] {
			return nil, fmt.Errorf("run %s: duplicate step id %s", id, step.ID)
		}
		if orders[step.Order] {
			return nil, fmt.Errorf("run %s: duplicate step order %d", id, step.Order)
		}
		if !step.Mode.IsValid() {
			return nil, fmt.Errorf("run %s: step %s: unsupported deployment mode %q", id, step.ID, step.Mode)
		}
		if step.Status != StepPending {
			return nil, fmt.Errorf("run %s: step %s must start pending, was %s", id, step.ID, step.Status)
		}
		ids[step.ID] = true
		orders[step.Order] = true
	}
	if approvalWindow < 0 {
		return nil, fmt.Errorf("run %s: negative approval window", id)
	}
	ordered := append([]*Step(nil), steps...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return &Run{ID: id, Name: name, Steps: ordered, ApprovalWindow: approvalWindow, CreatedAt: createdAt}, nil
}

// Step returns the step with id or nil.
func (r *Run) Step(id string) *Step {
	for _, step := range r.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// Status derives the overall run status: failed if any step failed,
// completed if every step completed, running otherwise.
func (r *Run) Status() RunStatus {
	completed := 0
	for _, step := range r.Steps {
		switch step.Status {
		case StepFailed:
			return RunFailed
		case StepCompleted:
			completed++
		}
	}
	if completed == len(r.Steps) {
		return RunCompleted
	}
	return RunRunning
}

// Progress returns the number of completed steps and the total. Rejected,
// failed and timed out steps are resolved but not completed.
func (r *Run) Progress() (completed, total int) {
	for _, step := range r.Steps {
		if step.Status == StepCompleted {
			completed++
		}
	}
	return completed, len(r.Steps)
}

// Halted reports whether a step reached failed, rejected or timeout, or the
// run was cancelled.
func (r *Run) Halted() bool {
	if r.Cancelled {
		return true
	}
	for _, step := range r.Steps {
		if step.Status.IsHalting() {
			return true
		}
	}
	return false
}

// Finished reports whether every step reached a terminal state.
func (r *Run) Finished() bool {
	for _, step := range r.Steps {
		if !step.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Steps = make([]*Step, len(r.Steps))
	for i, step := range r.Steps {
		clone.Steps[i] = step.Clone()
	}
	return &clone
}

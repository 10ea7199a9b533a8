package approval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/viant/fluxgate/model"
)

var (
	// ErrInvalidTransition is returned when an event is not legal from the
	// step's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrIncompleteConfirmation is returned when an approval misses required
	// checks or the typed confirmation does not match.
	ErrIncompleteConfirmation = errors.New("incomplete confirmation")

	// ErrMissingRejectionReason is returned when a rejection has no reason.
	ErrMissingRejectionReason = errors.New("rejection reason is required")

	// ErrMissingActor is returned when a decision does not name who made it.
	ErrMissingActor = errors.New("actor is required")

	// ErrStepNotFound is returned when the run has no step with the given id.
	ErrStepNotFound = errors.New("step not found")

	// ErrDecisionNotRecorded is returned when the audit sink refused a
	// decision; the step is left unchanged.
	ErrDecisionNotRecorded = errors.New("decision was not recorded")

	// ErrNotAssessed is returned when a step that must be assessed is
	// activated without an impact assessment attached.
	ErrNotAssessed = errors.New("impact assessment is not attached")
)

// TransitionError describes a refused transition.
type TransitionError struct {
	StepID string
	From   model.StepStatus
	Event  Event
	// Detail optionally explains why the event was refused.
	Detail string
}

// Resolved reports whether the step had already moved past the decision the
// event tried to make.
func (e *TransitionError) Resolved() bool {
	if e.From.IsTerminal() {
		return true
	}
	return e.Event.isDecision() && e.From == model.StepRunning
}

func (e *TransitionError) Error() string {
	var msg string
	if e.Resolved() {
		msg = fmt.Sprintf("%v: step %s already resolved (%s), cannot %s", ErrInvalidTransition, e.StepID, e.From, e.Event)
	} else {
		msg = fmt.Sprintf("%v: cannot %s step %s in status %s", ErrInvalidTransition, e.Event, e.StepID, e.From)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConfirmationError lists what an approval was missing so that a caller can
// re-render without losing state.
type ConfirmationError struct {
	StepID string
	// MissingChecks are the unacknowledged required checks, in required order.
	MissingChecks []string
	// ConfirmationMismatch is set when typed confirmation was required and
	// the supplied text was absent or different.
	ConfirmationMismatch bool
}

func (e *ConfirmationError) Error() string {
	var problems []string
	if len(e.MissingChecks) > 0 {
		problems = append(problems, fmt.Sprintf("missing checks: %q", e.MissingChecks))
	}
	if e.ConfirmationMismatch {
		problems = append(problems, "typed confirmation does not match")
	}
	return fmt.Sprintf("%v for step %s: %s", ErrIncompleteConfirmation, e.StepID, strings.Join(problems, "; "))
}

func (e *ConfirmationError) Unwrap() error { return ErrIncompleteConfirmation }

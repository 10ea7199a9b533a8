package approval

import (
	"time"

	"github.com/viant/fluxgate/model"
)

// Event names what triggered a transition.
type Event string

const (
	EventActivate Event = "activate"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventExpire   Event = "expire"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
)

func (e Event) isDecision() bool {
	switch e {
	case EventApprove, EventReject, EventExpire:
		return true
	}
	return false
}

// TopicOf returns the event type published when a step enters status, for
// example "step.waiting_approval".
func TopicOf(status model.StepStatus) string {
	return "step." + string(status)
}

// Transition describes one applied status change.
type Transition struct {
	RunID      string           `json:"runId"`
	StepID     string           `json:"stepId"`
	Event      Event            `json:"event"`
	From       model.StepStatus `json:"from"`
	To         model.StepStatus `json:"to"`
	Actor      string           `json:"actor,omitempty"`
	DecisionID string           `json:"decisionId,omitempty"`
	At         time.Time        `json:"at"`
}

// Request is the pending approval view of a step waiting for a decision.
type Request struct {
	RunID                     string               `json:"runId"`
	RunName                   string               `json:"runName,omitempty"`
	StepID                    string               `json:"stepId"`
	Order                     int                  `json:"order"`
	Mode                      model.DeploymentMode `json:"deploymentMode"`
	ImpactLevel               model.ImpactLevel    `json:"impactLevel"`
	Warnings                  []string             `json:"warnings,omitempty"`
	Preview                   *model.Preview       `json:"preview,omitempty"`
	RequiredChecks            []string             `json:"requiredChecks,omitempty"`
	RequiresTypedConfirmation bool                 `json:"requiresTypedConfirmation,omitempty"`
	ConfirmationText          string               `json:"confirmationText,omitempty"`
	Deadline                  *time.Time           `json:"deadline,omitempty"`
}

// NewRequest builds the pending view of step; it returns nil unless the step
// is waiting for approval.
func NewRequest(run *model.Run, step *model.Step) *Request {
	if step == nil || step.Status != model.StepWaitingApproval {
		return nil
	}
	clone := step.Clone()
	ret := &Request{
		RunID:                     run.ID,
		RunName:                   run.Name,
		StepID:                    clone.ID,
		Order:                     clone.Order,
		Mode:                      clone.Mode,
		Warnings:                  clone.Warnings,
		Preview:                   clone.Preview,
		RequiredChecks:            clone.RequiredChecks,
		RequiresTypedConfirmation: clone.RequiresTypedConfirmation,
		ConfirmationText:          clone.ConfirmationText,
		Deadline:                  clone.Deadline,
	}
	if clone.ImpactLevel != nil {
		ret.ImpactLevel = *clone.ImpactLevel
	}
	return ret
}

package model

import "time"

// Step is one unit of work within a workflow run. Its status is mutated only
// by the approval gate; readers work on clones.
type Step struct {
	ID        string         `json:"stepId"`
	Order     int            `json:"order"`
	Mode      DeploymentMode `json:"deploymentMode"`
	Operation *Operation     `json:"operation,omitempty"`
	Status    StepStatus     `json:"status"`

	ImpactLevel               *ImpactLevel `json:"impactLevel,omitempty"`
	Warnings                  []string     `json:"warnings,omitempty"`
	Preview                   *Preview     `json:"preview,omitempty"`
	RequiredChecks            []string     `json:"requiredChecks,omitempty"`
	RequiresTypedConfirmation bool         `json:"requiresTypedConfirmation,omitempty"`
	ConfirmationText          string       `json:"confirmationText,omitempty"`
	// ApprovalRequired holds the policy result; nil until the step is activated.
	ApprovalRequired *bool `json:"approvalRequired,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`

	ApprovedBy string `json:"approvedBy,omitempty"`
	RejectedBy string `json:"rejectedBy,omitempty"`
	// CancelledBy names who cancelled the owning run; an approved step keeps
	// its approver and leaves RejectedBy empty.
	CancelledBy  string `json:"cancelledBy,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// NewStep creates a pending step.
func NewStep(id string, order int, mode DeploymentMode, operation *Operation) *Step {
	return &Step{ID: id, Order: order, Mode: mode, Operation: operation, Status: StepPending}
}

// Assessed reports whether impact analysis output is attached.
func (s *Step) Assessed() bool {
	return s.ImpactLevel != nil
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Operation = s.Operation.Clone()
	clone.Preview = s.Preview.Clone()
	if s.ImpactLevel != nil {
		clone.ImpactLevel = s.ImpactLevel.Ptr()
	}
	if s.ApprovalRequired != nil {
		v := *s.ApprovalRequired
		clone.ApprovalRequired = &v
	}
	if s.Warnings != nil {
		clone.Warnings = append([]string(nil), s.Warnings...)
	}
	if s.RequiredChecks != nil {
		clone.RequiredChecks = append([]string(nil), s.RequiredChecks...)
	}
	clone.StartedAt = cloneTime(s.StartedAt)
	clone.CompletedAt = cloneTime(s.CompletedAt)
	clone.Deadline = cloneTime(s.Deadline)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

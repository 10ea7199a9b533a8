package model

import (
	"fmt"
	"time"
)

// DecisionKind identifies what resolved a waiting step.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionReject  DecisionKind = "reject"
	DecisionTimeout DecisionKind = "timeout"
)

// UnmarshalText implements encoding.TextUnmarshaler
func (k *DecisionKind) UnmarshalText(data []byte) error {
	switch kind := DecisionKind(data); kind {
	case DecisionApprove, DecisionReject, DecisionTimeout:
		*k = kind
		return nil
	}
	return fmt.Errorf("unsupported decision kind: %q", string(data))
}

// Decision is an immutable audit record of a state changing approve, reject
// or timeout. Steps are referenced by id only.
type Decision struct {
	ID                       string       `json:"id"`
	RunID                    string       `json:"runId"`
	StepID                   string       `json:"stepId"`
	Kind                     DecisionKind `json:"decision"`
	Actor                    string       `json:"actor"`
	Timestamp                time.Time    `json:"timestamp"`
	Reason                   string       `json:"reason,omitempty"`
	SuppliedChecks           []string     `json:"suppliedChecks,omitempty"`
	SuppliedConfirmationText *string      `json:"suppliedConfirmationText,omitempty"`
}

// Clone returns a deep copy of the decision.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	clone := *d
	if d.SuppliedChecks != nil {
		clone.SuppliedChecks = append([]string(nil), d.SuppliedChecks...)
	}
	if d.SuppliedConfirmationText != nil {
		text := *d.SuppliedConfirmationText
		clone.SuppliedConfirmationText = &text
	}
	return &clone
}

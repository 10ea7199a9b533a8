package model

import "fmt"

// StepStatus represents the lifecycle state of a step
type StepStatus string

const (
	StepPending         StepStatus = "pending"
	StepWaitingApproval StepStatus = "waiting_approval"
	StepRunning         StepStatus = "running"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
	StepRejected        StepStatus = "rejected"
	StepTimeout         StepStatus = "timeout"
)

// StepStatuses lists every legal status.
var StepStatuses = []StepStatus{StepPending, StepWaitingApproval, StepRunning, StepCompleted, StepFailed, StepRejected, StepTimeout}

// ParseStepStatus returns the status matching value or an error.
func ParseStepStatus(value string) (StepStatus, error) {
	for _, candidate := range StepStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported step status: %q", value)
}

// IsTerminal reports whether no transition leaves s.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepRejected, StepTimeout:
		return true
	}
	return false
}

// IsHalting reports whether s stops the owning run from advancing.
func (s StepStatus) IsHalting() bool {
	switch s {
	case StepFailed, StepRejected, StepTimeout:
		return true
	}
	return false
}

// IsActive reports whether the step is the one currently being worked on.
func (s StepStatus) IsActive() bool {
	return s == StepWaitingApproval || s == StepRunning
}

func (s StepStatus) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler
func (s StepStatus) MarshalText() ([]byte, error) {
	if _, err := ParseStepStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *StepStatus) UnmarshalText(data []byte) error {
	status, err := ParseStepStatus(string(data))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// RunStatus is the derived overall status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

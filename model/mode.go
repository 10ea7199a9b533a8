package model

import "fmt"

// DeploymentMode classifies how much autonomy a step gets. It is fixed when
// the step is defined and never changes during execution.
type DeploymentMode string

const (
	ModeAlwaysAuto         DeploymentMode = "always_auto"
	ModeAutoMonitored      DeploymentMode = "auto_monitored"
	ModeValidationRequired DeploymentMode = "validation_required"
	ModeAlwaysManual       DeploymentMode = "always_manual"
)

// DeploymentModes lists every legal mode.
var DeploymentModes = []DeploymentMode{ModeAlwaysAuto, ModeAutoMonitored, ModeValidationRequired, ModeAlwaysManual}

// ParseDeploymentMode returns the mode matching value or an error.
func ParseDeploymentMode(value string) (DeploymentMode, error) {
	for _, candidate := range DeploymentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported deployment mode: %q", value)
}

// IsValid reports whether m is one of the declared modes.
func (m DeploymentMode) IsValid() bool {
	_, err := ParseDeploymentMode(string(m))
	return err == nil
}

func (m DeploymentMode) String() string { return string(m) }

// MarshalText implements encoding.TextMarshaler
func (m DeploymentMode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("unsupported deployment mode: %q", string(m))
	}
	return []byte(m), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *DeploymentMode) UnmarshalText(data []byte) error {
	mode, err := ParseDeploymentMode(string(data))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

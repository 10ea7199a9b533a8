package model

import (
	"fmt"
	"time"

	"github.com/viant/fluxgate/internal/yml"
	"gopkg.in/yaml.v3"
)

// Definition is the declarative description of a run.
type Definition struct {
	Name string `json:"name" yaml:"name"`
	// ApprovalWindow is a Go duration string; empty uses the engine default.
	ApprovalWindow string            `json:"approvalWindow,omitempty" yaml:"approvalWindow,omitempty"`
	Steps          []*StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition declares one step of a run. An empty mode defers to the
// policy default for the operation kind.
type StepDefinition struct {
	ID        string         `json:"id" yaml:"id"`
	Order     int            `json:"order" yaml:"order"`
	Mode      DeploymentMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Operation *Operation     `json:"operation" yaml:"operation"`
}

// DecodeDefinition decodes a YAML (or JSON) definition.
func DecodeDefinition(data []byte) (*Definition, error) {
	ret := &Definition{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return ret, nil
}

// UnmarshalYAML accepts steps either as a sequence or as a mapping keyed by
// step id. Mapping entries without an order take their declaration position.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Name           string `yaml:"name"`
		ApprovalWindow string `yaml:"approvalWindow"`
	}
	if err := value.Decode(&head); err != nil {
		return err
	}
	d.Name, d.ApprovalWindow, d.Steps = head.Name, head.ApprovalWindow, nil
	steps := (*yml.Node)(value).Lookup("steps")
	if steps.IsNull() {
		return nil
	}
	switch steps.Kind {
	case yaml.SequenceNode:
		return steps.Items(func(index int, node *yml.Node) error {
			step := &StepDefinition{}
			if err := node.Decode(step); err != nil {
				return fmt.Errorf("step[%d]: %w", index, err)
			}
			d.Steps = append(d.Steps, step)
			return nil
		})
	case yaml.MappingNode:
		return steps.Pairs(func(id string, node *yml.Node) error {
			step := &StepDefinition{}
			if err := node.Decode(step); err != nil {
				return fmt.Errorf("step %s: %w", id, err)
			}
			if step.ID == "" {
				step.ID = id
			}
			if step.Order == 0 {
				step.Order = len(d.Steps) + 1
			}
			d.Steps = append(d.Steps, step)
			return nil
		})
	}
	return fmt.Errorf("steps: expected a sequence or a mapping")
}

// Window returns the parsed approval window, or fallback when unset.
func (d *Definition) Window(fallback time.Duration) (time.Duration, error) {
	if d.ApprovalWindow == "" {
		return fallback, nil
	}
	window, err := time.ParseDuration(d.ApprovalWindow)
	if err != nil {
		return 0, fmt.Errorf("invalid approval window %q: %w", d.ApprovalWindow, err)
	}
	if window < 0 {
		return 0, fmt.Errorf("invalid approval window %q: negative", d.ApprovalWindow)
	}
	return window, nil
}

// Validate reports structural problems; mode resolution happens later.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("definition was nil")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %q has no steps", d.Name)
	}
	for i, step := range d.Steps {
		if step == nil {
			return fmt.Errorf("definition %q: step[%d] was nil", d.Name, i)
		}
		if step.ID == "" {
			return fmt.Errorf("definition %q: step[%d] has no id", d.Name, i)
		}
		if step.Operation == nil || step.Operation.Kind == "" {
			return fmt.Errorf("definition %q: step %s has no operation kind", d.Name, step.ID)
		}
	}
	return nil
}

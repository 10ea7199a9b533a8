package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/fluxgate/model"
)

// RequiresApproval reports whether a step with mode and impact must wait for
// an explicit decision. Mode dictates blocking: impact only modulates
// validation_required.
func RequiresApproval(mode model.DeploymentMode, impact model.ImpactLevel) bool {
	switch mode {
	case model.ModeAlwaysAuto, model.ModeAutoMonitored:
		return false
	case model.ModeValidationRequired:
		return impact.AtLeast(model.ImpactMedium)
	case model.ModeAlwaysManual:
		return true
	}
	// unknown modes cannot be constructed through the parser; treat as manual
	return true
}

// Monitored reports whether the assessment of an auto-proceeding step must
// still be recorded for later review.
func Monitored(mode model.DeploymentMode) bool {
	return mode == model.ModeAutoMonitored
}

// Policy resolves the effective deployment mode of a step.
//
//   - DefaultMode applies to steps without a declared mode (default
//     validation_required).
//   - Overrides map an operation kind to a mode used when the step does not
//     declare one.
//   - BlockList names operation kinds that always require manual approval,
//     whatever the declared mode.
//
// A nil *Policy behaves like the zero value.
type Policy struct {
	DefaultMode model.DeploymentMode
	Overrides   map[string]model.DeploymentMode
	BlockList   []string
}

// Config represents the declarative, serialisable form of a Policy.
type Config struct {
	DefaultMode string            `json:"defaultMode,omitempty" yaml:"defaultMode,omitempty"`
	Overrides   map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	BlockList   []string          `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	ret := &Config{
		DefaultMode: string(p.DefaultMode),
		BlockList:   append([]string(nil), p.BlockList...),
	}
	if len(p.Overrides) > 0 {
		ret.Overrides = make(map[string]string, len(p.Overrides))
		for kind, mode := range p.Overrides {
			ret.Overrides[kind] = string(mode)
		}
	}
	return ret
}

// FromConfig converts a stored Config back to a runtime Policy.
func FromConfig(c *Config) (*Policy, error) {
	if c == nil {
		return nil, nil
	}
	ret := &Policy{BlockList: append([]string(nil), c.BlockList...)}
	if c.DefaultMode != "" {
		mode, err := model.ParseDeploymentMode(c.DefaultMode)
		if err != nil {
			return nil, fmt.Errorf("policy default: %w", err)
		}
		ret.DefaultMode = mode
	}
	if len(c.Overrides) > 0 {
		ret.Overrides = make(map[string]model.DeploymentMode, len(c.Overrides))
		for kind, value := range c.Overrides {
			mode, err := model.ParseDeploymentMode(value)
			if err != nil {
				return nil, fmt.Errorf("policy override %s: %w", kind, err)
			}
			ret.Overrides[strings.ToLower(kind)] = mode
		}
	}
	return ret, nil
}

// IsBlocked reports whether the operation kind is on the block list
// (case-insensitive).
func (p *Policy) IsBlocked(kind string) bool {
	if p == nil {
		return false
	}
	for _, candidate := range p.BlockList {
		if strings.EqualFold(candidate, kind) {
			return true
		}
	}
	return false
}

// Resolve returns the effective mode for a step of the given operation kind.
func (p *Policy) Resolve(kind string, declared model.DeploymentMode) model.DeploymentMode {
	if p.IsBlocked(kind) {
		return model.ModeAlwaysManual
	}
	if declared != "" {
		return declared
	}
	if p != nil {
		if mode, ok := p.Overrides[strings.ToLower(kind)]; ok {
			return mode
		}
		if p.DefaultMode != "" {
			return p.DefaultMode
		}
	}
	return model.ModeValidationRequired
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}

package impact

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/viant/fluxgate/model"
)

// EscalationRule raises the impact of operations matching a CEL expression.
// The expression sees a single variable `op`:
//
//	op.kind, op.target, op.environment  string
//	op.production                       bool
//	op.changes                          int (number of field changes)
//	op.fields, op.flags                 list(string)
//	op.amount                           int (transaction total, minor units)
//	op.currency                         string
//	op.attributes                       map(string, dyn)
type EscalationRule struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
	Level      string `json:"level" yaml:"level"`
	Warning    string `json:"warning,omitempty" yaml:"warning,omitempty"`
	Check      string `json:"check,omitempty" yaml:"check,omitempty"`
}

type compiledRule struct {
	rule    *EscalationRule
	level   model.ImpactLevel
	program cel.Program
}

// Escalations is a compiled, ordered rule set.
type Escalations struct {
	rules []*compiledRule
}

// NewEscalations compiles rules; any invalid rule fails construction.
func NewEscalations(rules ...*EscalationRule) (*Escalations, error) {
	env, err := cel.NewEnv(
		cel.Variable("op", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ret := &Escalations{}
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		level, err := model.ParseImpactLevel(rule.Level)
		if err != nil {
			return nil, fmt.Errorf("escalation %s: %w", rule.Name, err)
		}
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("escalation %s: CEL compile error: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("escalation %s: CEL program error: %w", rule.Name, err)
		}
		ret.rules = append(ret.rules, &compiledRule{rule: rule, level: level, program: program})
	}
	return ret, nil
}

// Len returns the number of compiled rules.
func (e *Escalations) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// apply evaluates every rule in order against input. A rule that fails to
// evaluate is treated as matched so that the result errs on the safe side.
func (e *Escalations) apply(input map[string]interface{}, finding *Finding) {
	if e == nil {
		return
	}
	for _, compiled := range e.rules {
		matched := true
		failed := false
		out, _, err := compiled.program.Eval(map[string]interface{}{"op": input})
		if err != nil {
			failed = true
		} else if value, ok := out.Value().(bool); ok {
			matched = value
		} else {
			failed = true
		}
		if !matched {
			continue
		}
		finding.Level = finding.Level.Max(compiled.level)
		if failed {
			finding.Warnings = append(finding.Warnings, fmt.Sprintf("Escalation rule %s could not be evaluated", compiled.rule.Name))
			continue
		}
		if compiled.rule.Warning != "" {
			finding.Warnings = append(finding.Warnings, compiled.rule.Warning)
		}
		if compiled.rule.Check != "" {
			finding.Checks = append(finding.Checks, compiled.rule.Check)
		}
	}
}

func celInput(op *model.Operation, production bool) map[string]interface{} {
	fields := make([]string, 0, len(op.Changes))
	for _, change := range op.Changes {
		if change != nil {
			fields = append(fields, change.Field)
		}
	}
	flags := append([]string{}, op.Flags...)
	attributes := op.Attributes
	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	currency := ""
	if op.Transaction != nil {
		currency = op.Transaction.Currency
	}
	return map[string]interface{}{
		"kind":        strings.ToLower(op.Kind),
		"target":      op.Target,
		"environment": op.Environment,
		"production":  production,
		"changes":     int64(len(op.Changes)),
		"fields":      fields,
		"flags":       flags,
		"amount":      op.Transaction.Total(),
		"currency":    currency,
		"attributes":  attributes,
	}
}

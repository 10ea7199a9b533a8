package impact

import "strings"

// Option customises an Analyzer.
type Option func(a *Analyzer)

// WithRule registers (or replaces) the rule for an operation kind.
func WithRule(kind string, rule Rule) Option {
	return func(a *Analyzer) {
		a.rules[strings.ToLower(kind)] = rule
	}
}

// WithProductionEnvironments marks environments treated as production
// equivalent (case-insensitive).
func WithProductionEnvironments(environments ...string) Option {
	return func(a *Analyzer) {
		for _, environment := range environments {
			a.production[strings.ToLower(environment)] = true
		}
	}
}

// WithEscalations attaches compiled escalation rules.
func WithEscalations(escalations *Escalations) Option {
	return func(a *Analyzer) {
		a.escalations = escalations
	}
}

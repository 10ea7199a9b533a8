package impact

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/tracing"
)

// Analyzer assesses operations. It is safe for concurrent use once built.
type Analyzer struct {
	rules       map[string]Rule
	production  map[string]bool
	escalations *Escalations
}

// New creates an analyzer with the built-in rules.
func New(options ...Option) *Analyzer {
	ret := &Analyzer{
		rules:      DefaultRules(),
		production: map[string]bool{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// IsProduction reports whether environment is production equivalent.
func (a *Analyzer) IsProduction(environment string) bool {
	return a.production[strings.ToLower(environment)]
}

// Analyze assesses op. It never fails: unknown operation kinds get the
// fail-closed critical assessment.
func (a *Analyzer) Analyze(ctx context.Context, op *model.Operation) *Assessment {
	_, span := tracing.StartSpan(ctx, "impact.Analyze")
	defer tracing.EndSpan(span, nil)

	if op == nil {
		op = &model.Operation{}
	}
	span.WithAttributes(map[string]string{tracing.OperationKind: op.Kind})

	var finding *Finding
	unclassified := false
	if rule, ok := a.rules[strings.ToLower(op.Kind)]; ok && rule != nil {
		finding = rule(op)
	}
	if finding == nil || !finding.Level.IsValid() {
		unclassified = true
		finding = &Finding{Level: model.ImpactCritical, Checks: []string{UnrecognizedCheck}}
	}
	finding = &Finding{
		Level:    finding.Level,
		Warnings: append([]string(nil), finding.Warnings...),
		Checks:   append([]string(nil), finding.Checks...),
	}

	if op.HasFlag(FlagAuditOnly) {
		finding.Level = finding.Level.Max(model.ImpactHigh)
	}
	production := op.Environment != "" && a.IsProduction(op.Environment)
	if production {
		finding.Checks = append(finding.Checks, fmt.Sprintf("Change to production environment %s is authorised", op.Environment))
	}
	a.escalations.apply(celInput(op, production), finding)

	ret := &Assessment{
		ImpactLevel:    finding.Level,
		Warnings:       uniqueOrdered(finding.Warnings),
		RequiredChecks: uniqueOrdered(finding.Checks),
		Unclassified:   unclassified,
	}
	if ret.Warnings == nil {
		ret.Warnings = []string{}
	}
	if ret.RequiredChecks == nil {
		ret.RequiredChecks = []string{}
	}
	if ret.ImpactLevel == model.ImpactCritical || production {
		ret.RequiresTypedConfirmation = true
		ret.ConfirmationText = ConfirmationText(op, ret.RequiredChecks)
	}
	preview, err := BuildPreview(op)
	if err != nil {
		ret.Warnings = append(ret.Warnings, "Preview is unavailable: "+err.Error())
		preview = &model.Preview{Operation: op.Kind, Target: op.Target, Environment: op.Environment}
	}
	ret.Preview = preview
	return ret
}

// Attach copies the assessment onto step. Impact level, preview and checks
// are immutable once attached, so attaching twice is refused.
func Attach(step *model.Step, assessment *Assessment) error {
	if step == nil || assessment == nil {
		return fmt.Errorf("step and assessment are required")
	}
	if step.Assessed() {
		return fmt.Errorf("step %s already carries an impact assessment", step.ID)
	}
	step.ImpactLevel = assessment.ImpactLevel.Ptr()
	step.Warnings = append([]string(nil), assessment.Warnings...)
	step.RequiredChecks = append([]string(nil), assessment.RequiredChecks...)
	step.RequiresTypedConfirmation = assessment.RequiresTypedConfirmation
	step.ConfirmationText = assessment.ConfirmationText
	step.Preview = assessment.Preview.Clone()
	return nil
}

func uniqueOrdered(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	ret := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		ret = append(ret, value)
	}
	return ret
}

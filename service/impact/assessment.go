package impact

import "github.com/viant/fluxgate/model"

const (
	// UnrecognizedCheck is the required check attached to operations that
	// could not be classified.
	UnrecognizedCheck = "Unrecognized operation type; manual review required"

	// FlagAuditOnly marks operations that must be reviewed for compliance
	// even when nothing about them looks risky.
	FlagAuditOnly = "audit_only"
)

// Assessment is the analyzer output attached to a step.
type Assessment struct {
	ImpactLevel               model.ImpactLevel `json:"impactLevel"`
	Warnings                  []string          `json:"warnings"`
	RequiredChecks            []string          `json:"requiredChecks"`
	RequiresTypedConfirmation bool              `json:"requiresTypedConfirmation"`
	ConfirmationText          string            `json:"confirmationText,omitempty"`
	Preview                   *model.Preview    `json:"preview,omitempty"`
	// Unclassified is set when the operation kind was not recognised and the
	// fail-closed default was applied.
	Unclassified bool `json:"unclassified,omitempty"`
}

// Finding is what a single rule contributes to an assessment.
type Finding struct {
	Level    model.ImpactLevel
	Warnings []string
	Checks   []string
}

// Rule classifies one operation kind. Rules must be deterministic.
type Rule func(op *model.Operation) *Finding

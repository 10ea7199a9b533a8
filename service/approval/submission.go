package approval

import "github.com/viant/fluxgate/model"

// Submission is what an approver sends with an approve decision.
type Submission struct {
	Actor string `json:"actor"`
	// Checks are the acknowledged required checks. Extra entries are allowed.
	Checks []string `json:"checks,omitempty"`
	// ConfirmationText is the typed phrase; nil when nothing was typed.
	ConfirmationText *string `json:"confirmationText,omitempty"`
}

// CompleteSubmission acknowledges everything step requires.
func CompleteSubmission(actor string, step *model.Step) Submission {
	ret := Submission{Actor: actor, Checks: append([]string(nil), step.RequiredChecks...)}
	if step.RequiresTypedConfirmation {
		text := step.ConfirmationText
		ret.ConfirmationText = &text
	}
	return ret
}

// CheckConfirmation validates submission against step. Every required check
// must be acknowledged and typed text, when required, must equal the
// confirmation text exactly: case-sensitive, no trimming.
func CheckConfirmation(step *model.Step, submission Submission) *ConfirmationError {
	acknowledged := make(map[string]bool, len(submission.Checks))
	for _, check := range submission.Checks {
		acknowledged[check] = true
	}
	ret := &ConfirmationError{StepID: step.ID}
	for _, check := range step.RequiredChecks {
		if !acknowledged[check] {
			ret.MissingChecks = append(ret.MissingChecks, check)
		}
	}
	if step.RequiresTypedConfirmation {
		ret.ConfirmationMismatch = submission.ConfirmationText == nil || *submission.ConfirmationText != step.ConfirmationText
	}
	if len(ret.MissingChecks) == 0 && !ret.ConfirmationMismatch {
		return nil
	}
	return ret
}

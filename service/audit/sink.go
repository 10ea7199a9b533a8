package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/fluxgate/model"
)

// ErrInvalidDecision is returned when a decision lacks the fields every
// record must carry.
var ErrInvalidDecision = errors.New("audit: invalid decision")

// Sink is the append-only decision store. Append is atomic and idempotent by
// Decision.ID: appending an id that is already present succeeds without
// writing a second record. List returns the decisions of a run in append
// order.
type Sink interface {
	Append(ctx context.Context, decision *model.Decision) error
	List(ctx context.Context, runID string) ([]*model.Decision, error)
}

// Validate checks the fields required of every decision.
func Validate(decision *model.Decision) error {
	if decision == nil {
		return fmt.Errorf("%w: nil decision", ErrInvalidDecision)
	}
	var missing []string
	if decision.ID == "" {
		missing = append(missing, "id")
	}
	if decision.RunID == "" {
		missing = append(missing, "runId")
	}
	if decision.StepID == "" {
		missing = append(missing, "stepId")
	}
	if decision.Actor == "" {
		missing = append(missing, "actor")
	}
	if decision.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w %s: missing %s", ErrInvalidDecision, decision.ID, strings.Join(missing, ", "))
	}
	switch decision.Kind {
	case model.DecisionApprove, model.DecisionTimeout:
	case model.DecisionReject:
		if strings.TrimSpace(decision.Reason) == "" {
			return fmt.Errorf("%w %s: reject requires a reason", ErrInvalidDecision, decision.ID)
		}
	default:
		return fmt.Errorf("%w %s: unsupported kind %q", ErrInvalidDecision, decision.ID, decision.Kind)
	}
	return nil
}

package approval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/service/approval"
	"github.com/viant/fluxgate/service/audit/memory"
)

var (
	modes  = []model.DeploymentMode{model.ModeAlwaysAuto, model.ModeAutoMonitored, model.ModeValidationRequired, model.ModeAlwaysManual}
	levels = []model.ImpactLevel{model.ImpactLow, model.ImpactMedium, model.ImpactHigh, model.ImpactCritical}
)

// apply sends event number op to the gate and reports whether a decision
// should have been recorded.
func apply(ctx context.Context, gate *approval.Gate, run *model.Run, op int) (decided bool, err error) {
	switch op {
	case 0:
		_, err = gate.Activate(ctx, run, "s1")
	case 1:
		_, err = gate.Approve(ctx, run, "s1", approval.CompleteSubmission("alice", run.Step("s1")))
		decided = true
	case 2:
		_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
		decided = true
	case 3:
		_, err = gate.Reject(ctx, run, "s1", "bob", "no")
		decided = true
	case 4:
		_, err = gate.Expire(ctx, run, "s1")
		decided = true
	case 5:
		_, err = gate.Complete(ctx, run, "s1")
	case 6:
		_, err = gate.Fail(ctx, run, "s1", errors.New("boom"))
	case 7:
		run.Cancelled = true
		_, err = gate.Cancel(ctx, run, "s1", "ops")
		decided = true
	}
	return decided && err == nil, err
}

func TestGate_TransitionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("terminal states are final, approval is never skipped, one resolver is recorded and only accepted decisions are logged", prop.ForAll(
		func(modeIndex, levelIndex int, withChecks bool, ops []int) bool {
			ctx := context.Background()
			mode, level := modes[modeIndex], levels[levelIndex]
			step := model.NewStep("s1", 1, mode, &model.Operation{Kind: "record.delete"})
			step.ImpactLevel = level.Ptr()
			if withChecks {
				step.RequiredChecks = []string{"backup exists"}
				step.RequiresTypedConfirmation = true
				step.ConfirmationText = "DELETE-S1"
			}
			run, err := model.NewRun("r1", "", []*model.Step{step}, time.Minute, time.Now())
			if err != nil {
				return false
			}
			sink := memory.New()
			gate := approval.New(sink)
			required := policy.RequiresApproval(mode, level)

			expectedDecisions := 0
			previous := step.Status
			for _, op := range ops {
				decided, err := apply(ctx, gate, run, op)
				current := run.Step("s1").Status
				if run.Step("s1").ApprovedBy != "" && run.Step("s1").RejectedBy != "" {
					return false
				}
				if previous.IsTerminal() && current != previous {
					return false
				}
				if err != nil && current != previous {
					return false
				}
				if op == 0 && previous == model.StepPending && current != model.StepPending {
					if required && current != model.StepWaitingApproval {
						return false
					}
					if !required && current == model.StepWaitingApproval {
						return false
					}
				}
				if decided {
					expectedDecisions++
				}
				previous = current
			}
			decisions, _ := sink.List(ctx, "r1")
			return len(decisions) == expectedDecisions
		},
		gen.IntRange(0, len(modes)-1),
		gen.IntRange(0, len(levels)-1),
		gen.Bool(),
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}

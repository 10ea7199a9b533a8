package approval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxgate/internal/clock"
	"github.com/viant/fluxgate/internal/idgen"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/approval"
	"github.com/viant/fluxgate/service/audit/memory"
	"github.com/viant/fluxgate/service/event"
	qmem "github.com/viant/fluxgate/service/messaging/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newClock() *clock.Manual {
	return clock.NewManual(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
}

func assessed(id string, order int, mode model.DeploymentMode, level model.ImpactLevel, checks ...string) *model.Step {
	step := model.NewStep(id, order, mode, &model.Operation{Kind: "record.update", Target: id})
	step.ImpactLevel = level.Ptr()
	step.RequiredChecks = checks
	return step
}

func newRun(t *testing.T, window time.Duration, steps ...*model.Step) *model.Run {
	run, err := model.NewRun("run-1", "test", steps, window, time.Now())
	require.NoError(t, err)
	return run
}

func newGate(sink *memory.Sink, manual *clock.Manual, options ...approval.Option) *approval.Gate {
	return approval.New(sink, append([]approval.Option{
		approval.WithClock(manual.Now),
		approval.WithIDGenerator(idgen.Sequence("d")),
	}, options...)...)
}

func text(value string) *string { return &value }

func TestGate_Activate(t *testing.T) {
	type testCase struct {
		name         string
		step         *model.Step
		expectStatus model.StepStatus
		expectErr    error
	}
	unassessedAuto := model.NewStep("s1", 1, model.ModeAlwaysAuto, &model.Operation{Kind: "device.reboot"})
	unassessedManual := model.NewStep("s1", 1, model.ModeAlwaysManual, &model.Operation{Kind: "device.reboot"})
	testCases := []testCase{
		{name: "always auto critical runs", step: assessed("s1", 1, model.ModeAlwaysAuto, model.ImpactCritical), expectStatus: model.StepRunning},
		{name: "always auto without assessment runs", step: unassessedAuto, expectStatus: model.StepRunning},
		{name: "auto monitored critical runs", step: assessed("s1", 1, model.ModeAutoMonitored, model.ImpactCritical), expectStatus: model.StepRunning},
		{name: "validation low runs", step: assessed("s1", 1, model.ModeValidationRequired, model.ImpactLow), expectStatus: model.StepRunning},
		{name: "validation medium waits", step: assessed("s1", 1, model.ModeValidationRequired, model.ImpactMedium), expectStatus: model.StepWaitingApproval},
		{name: "always manual low waits", step: assessed("s1", 1, model.ModeAlwaysManual, model.ImpactLow), expectStatus: model.StepWaitingApproval},
		{name: "manual without assessment refused", step: unassessedManual, expectStatus: model.StepPending, expectErr: approval.ErrNotAssessed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock := newClock()
			sink := memory.New()
			gate := newGate(sink, clock)
			run := newRun(t, time.Minute, tc.step)
			transition, err := gate.Activate(context.Background(), run, "s1")
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.Nil(t, transition)
			} else {
				require.NoError(t, err)
				assert.Equal(t, model.StepPending, transition.From)
				assert.Equal(t, tc.expectStatus, transition.To)
			}
			step := run.Step("s1")
			assert.Equal(t, tc.expectStatus, step.Status)
			switch tc.expectStatus {
			case model.StepWaitingApproval:
				require.NotNil(t, step.Deadline)
				assert.Equal(t, clock.Now().Add(time.Minute), *step.Deadline)
				assert.Nil(t, step.StartedAt)
				assert.True(t, *step.ApprovalRequired)
			case model.StepRunning:
				require.NotNil(t, step.StartedAt)
				assert.False(t, *step.ApprovalRequired)
			}
			decisions, _ := sink.List(context.Background(), "")
			assert.Empty(t, decisions)
		})
	}
}

func TestGate_ActivateOrdering(t *testing.T) {
	gate := newGate(memory.New(), newClock())
	run := newRun(t, 0,
		assessed("s1", 1, model.ModeAlwaysAuto, model.ImpactLow),
		assessed("s2", 2, model.ModeAlwaysAuto, model.ImpactLow),
	)
	ctx := context.Background()
	_, err := gate.Activate(ctx, run, "s2")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
	assert.ErrorContains(t, err, "preceding step s1 is pending")

	_, err = gate.Activate(ctx, run, "s1")
	require.NoError(t, err)
	_, err = gate.Activate(ctx, run, "s1")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
	_, err = gate.Activate(ctx, run, "missing")
	assert.ErrorIs(t, err, approval.ErrStepNotFound)

	_, err = gate.Complete(ctx, run, "s1")
	require.NoError(t, err)
	transition, err := gate.Activate(ctx, run, "s2")
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, transition.To)
	assert.Nil(t, run.Step("s2").Deadline)
}

func TestGate_ApproveTypedConfirmation(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	gate := newGate(sink, newClock())
	step := assessed("s1", 1, model.ModeAlwaysManual, model.ImpactCritical, "confirm backup exists", "confirm off-hours")
	step.RequiresTypedConfirmation = true
	step.ConfirmationText = "DELETE-PROD-DB"
	run := newRun(t, 0, step)
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)

	checks := []string{"confirm backup exists", "confirm off-hours"}
	type testCase struct {
		name           string
		submission     approval.Submission
		expectMissing  []string
		expectMismatch bool
	}
	testCases := []testCase{
		{name: "wrong case", submission: approval.Submission{Actor: "alice", Checks: checks, ConfirmationText: text("delete-prod-db")}, expectMismatch: true},
		{name: "trailing space", submission: approval.Submission{Actor: "alice", Checks: checks, ConfirmationText: text("DELETE-PROD-DB ")}, expectMismatch: true},
		{name: "no text", submission: approval.Submission{Actor: "alice", Checks: checks}, expectMismatch: true},
		{name: "subset of checks", submission: approval.Submission{Actor: "alice", Checks: checks[1:], ConfirmationText: text("DELETE-PROD-DB")}, expectMissing: []string{"confirm backup exists"}},
		{name: "nothing", submission: approval.Submission{Actor: "alice"}, expectMissing: checks, expectMismatch: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transition, err := gate.Approve(ctx, run, "s1", tc.submission)
			assert.Nil(t, transition)
			require.ErrorIs(t, err, approval.ErrIncompleteConfirmation)
			var confirmationErr *approval.ConfirmationError
			require.True(t, errors.As(err, &confirmationErr))
			assert.Equal(t, tc.expectMissing, confirmationErr.MissingChecks)
			assert.Equal(t, tc.expectMismatch, confirmationErr.ConfirmationMismatch)
			assert.Equal(t, model.StepWaitingApproval, run.Step("s1").Status)
		})
	}
	decisions, _ := sink.List(ctx, run.ID)
	assert.Empty(t, decisions)

	superset := approval.Submission{Actor: "alice", Checks: append([]string{"extra"}, checks...), ConfirmationText: text("DELETE-PROD-DB")}
	transition, err := gate.Approve(ctx, run, "s1", superset)
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, transition.To)
	assert.Equal(t, "d1", transition.DecisionID)
	assert.Equal(t, "alice", run.Step("s1").ApprovedBy)
	assert.Empty(t, run.Step("s1").RejectedBy)

	decisions, _ = sink.List(ctx, run.ID)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.DecisionApprove, decisions[0].Kind)
	assert.Equal(t, "DELETE-PROD-DB", *decisions[0].SuppliedConfirmationText)
}

func TestGate_ApproveTwice(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	gate := newGate(sink, newClock())
	run := newRun(t, 0, assessed("s1", 1, model.ModeAlwaysManual, model.ImpactLow, "ok"))
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)

	submission := approval.Submission{Actor: "alice", Checks: []string{"ok"}}
	_, err = gate.Approve(ctx, run, "s1", submission)
	require.NoError(t, err)
	_, err = gate.Approve(ctx, run, "s1", submission)
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
	assert.ErrorContains(t, err, "already resolved")
	_, err = gate.Reject(ctx, run, "s1", "bob", "too late")
	assert.ErrorContains(t, err, "already resolved")

	_, err = gate.Complete(ctx, run, "s1")
	require.NoError(t, err)
	_, err = gate.Approve(ctx, run, "s1", submission)
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)

	decisions, _ := sink.List(ctx, run.ID)
	assert.Len(t, decisions, 1)
}

func TestGate_Reject(t *testing.T) {
	ctx := context.Background()
	type testCase struct {
		name      string
		actor     string
		reason    string
		expectErr error
	}
	testCases := []testCase{
		{name: "empty reason", actor: "bob", reason: "", expectErr: approval.ErrMissingRejectionReason},
		{name: "whitespace reason", actor: "bob", reason: " \t\n", expectErr: approval.ErrMissingRejectionReason},
		{name: "missing actor", actor: "", reason: "no", expectErr: approval.ErrMissingActor},
		{name: "accepted without checks", actor: "bob", reason: "wrong target"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := memory.New()
			gate := newGate(sink, newClock())
			run := newRun(t, 0, assessed("s1", 1, model.ModeAlwaysManual, model.ImpactHigh, "check one", "check two"))
			_, err := gate.Activate(ctx, run, "s1")
			require.NoError(t, err)

			_, err = gate.Reject(ctx, run, "s1", tc.actor, tc.reason)
			decisions, _ := sink.List(ctx, run.ID)
			step := run.Step("s1")
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.Equal(t, model.StepWaitingApproval, step.Status)
				assert.Empty(t, decisions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StepRejected, step.Status)
			assert.Equal(t, "bob", step.RejectedBy)
			assert.Equal(t, tc.reason, step.ErrorMessage)
			assert.Empty(t, step.ApprovedBy)
			require.Len(t, decisions, 1)
			assert.Equal(t, tc.reason, decisions[0].Reason)
		})
	}
}

func TestGate_ExpireThenDecide(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	clock := newClock()
	gate := newGate(sink, clock)
	run := newRun(t, 30*time.Minute, assessed("s1", 1, model.ModeValidationRequired, model.ImpactHigh))
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	transition, err := gate.Expire(ctx, run, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StepTimeout, transition.To)
	step := run.Step("s1")
	assert.Equal(t, "approval window of 30m0s expired", step.ErrorMessage)
	assert.Nil(t, step.Deadline)
	require.NotNil(t, step.CompletedAt)

	clock.Advance(time.Microsecond)
	_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
	var transitionErr *approval.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.True(t, transitionErr.Resolved())
	assert.Equal(t, model.StepTimeout, transitionErr.From)

	_, err = gate.Expire(ctx, run, "s1")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)

	decisions, _ := sink.List(ctx, run.ID)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.DecisionTimeout, decisions[0].Kind)
	assert.Equal(t, approval.SystemActor, decisions[0].Actor)
}

func TestGate_CompleteAndFail(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	gate := newGate(memory.New(), clock)
	run := newRun(t, 0,
		assessed("s1", 1, model.ModeAlwaysAuto, model.ImpactLow),
		assessed("s2", 2, model.ModeAlwaysAuto, model.ImpactLow),
	)
	_, err := gate.Fail(ctx, run, "s1", errors.New("boom"))
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)

	_, err = gate.Activate(ctx, run, "s1")
	require.NoError(t, err)
	clock.Advance(1500 * time.Millisecond)
	_, err = gate.Complete(ctx, run, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), run.Step("s1").DurationMs)
	assert.Empty(t, run.Step("s1").ErrorMessage)

	_, err = gate.Activate(ctx, run, "s2")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = gate.Fail(ctx, run, "s2", errors.New("connection refused"))
	require.NoError(t, err)
	assert.Equal(t, model.StepFailed, run.Step("s2").Status)
	assert.Equal(t, "connection refused", run.Step("s2").ErrorMessage)
	assert.Equal(t, int64(1000), run.Step("s2").DurationMs)
	assert.Equal(t, model.RunFailed, run.Status())

	_, err = gate.Complete(ctx, run, "s2")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
}

type failingSink struct {
	*memory.Sink
	err error
}

func (s *failingSink) Append(ctx context.Context, d *model.Decision) error {
	if s.err != nil {
		return s.err
	}
	return s.Sink.Append(ctx, d)
}

func TestGate_AuditFailureRefusesTransition(t *testing.T) {
	ctx := context.Background()
	sink := &failingSink{Sink: memory.New()}
	gate := approval.New(sink)
	run := newRun(t, time.Hour, assessed("s1", 1, model.ModeAlwaysManual, model.ImpactLow))
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)

	sink.err = errors.New("disk full")
	_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
	assert.ErrorIs(t, err, approval.ErrDecisionNotRecorded)
	assert.ErrorContains(t, err, "disk full")
	_, err = gate.Reject(ctx, run, "s1", "bob", "no")
	assert.ErrorIs(t, err, approval.ErrDecisionNotRecorded)
	_, err = gate.Expire(ctx, run, "s1")
	assert.ErrorIs(t, err, approval.ErrDecisionNotRecorded)

	step := run.Step("s1")
	assert.Equal(t, model.StepWaitingApproval, step.Status)
	assert.NotNil(t, step.Deadline)
	assert.Empty(t, step.ApprovedBy)

	sink.err = nil
	_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
	require.NoError(t, err)
	decisions, _ := sink.List(ctx, run.ID)
	assert.Len(t, decisions, 1)
}

func TestGate_Cancel(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	gate := newGate(sink, newClock())
	run := newRun(t, 0,
		assessed("s1", 1, model.ModeAlwaysAuto, model.ImpactLow),
		assessed("s2", 2, model.ModeAlwaysManual, model.ImpactLow),
		assessed("s3", 3, model.ModeAlwaysAuto, model.ImpactLow),
	)
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)
	_, err = gate.Complete(ctx, run, "s1")
	require.NoError(t, err)
	_, err = gate.Activate(ctx, run, "s2")
	require.NoError(t, err)

	_, err = gate.Cancel(ctx, run, "s2", "ops")
	var transitionErr *approval.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "run is not cancelled", transitionErr.Detail)
	assert.Equal(t, model.StepWaitingApproval, run.Step("s2").Status)

	run.Cancelled = true
	for _, id := range []string{"s2", "s3"} {
		transition, err := gate.Cancel(ctx, run, id, "")
		require.NoError(t, err)
		assert.Equal(t, model.StepRejected, transition.To)
		assert.Equal(t, approval.CancelReason, run.Step(id).ErrorMessage)
		assert.Equal(t, approval.SystemActor, run.Step(id).RejectedBy)
		assert.Equal(t, approval.SystemActor, run.Step(id).CancelledBy)
	}
	_, err = gate.Cancel(ctx, run, "s1", "ops")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)

	decisions, _ := sink.List(ctx, run.ID)
	require.Len(t, decisions, 2)
	assert.Equal(t, model.DecisionReject, decisions[0].Kind)
	assert.Equal(t, approval.CancelReason, decisions[1].Reason)
	assert.Equal(t, 1, completed(run))
}

func TestGate_CancelApprovedStep(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	gate := newGate(sink, newClock())
	run := newRun(t, time.Minute, assessed("s1", 1, model.ModeAlwaysManual, model.ImpactLow))
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)
	_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
	require.NoError(t, err)

	_, err = gate.Cancel(ctx, run, "s1", "ops")
	assert.ErrorIs(t, err, approval.ErrInvalidTransition, "running step of a live run")
	assert.Equal(t, model.StepRunning, run.Step("s1").Status)

	run.Cancelled = true
	transition, err := gate.Cancel(ctx, run, "s1", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, transition.From)
	step := run.Step("s1")
	assert.Equal(t, model.StepRejected, step.Status)
	assert.Equal(t, "alice", step.ApprovedBy)
	assert.Empty(t, step.RejectedBy)
	assert.Equal(t, "ops", step.CancelledBy)
	assert.Equal(t, approval.CancelReason, step.ErrorMessage)

	decisions, _ := sink.List(ctx, run.ID)
	require.Len(t, decisions, 2)
	assert.Equal(t, model.DecisionReject, decisions[1].Kind)
	assert.Equal(t, "ops", decisions[1].Actor)
}

func completed(run *model.Run) int {
	done, _ := run.Progress()
	return done
}

func TestGate_PublishesTransitions(t *testing.T) {
	ctx := context.Background()
	queue := qmem.NewQueue[event.Event[approval.Transition]](qmem.DefaultConfig())
	core, logs := observer.New(zapcore.InfoLevel)
	gate := newGate(memory.New(), newClock(),
		approval.WithPublisher(event.NewPublisher[approval.Transition](queue)),
		approval.WithLogger(zap.New(core)),
	)
	run := newRun(t, 0, assessed("s1", 1, model.ModeAutoMonitored, model.ImpactCritical))
	_, err := gate.Activate(ctx, run, "s1")
	require.NoError(t, err)

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	published := message.T()
	assert.Equal(t, "step.running", published.Context.Topic)
	assert.Equal(t, model.StepRunning, published.Data.To)
	assert.Equal(t, 1, logs.FilterMessage("monitored step proceeds without approval").Len())
	assert.Equal(t, 1, logs.FilterMessage("step transition").Len())

	_, err = gate.Approve(ctx, run, "s1", approval.Submission{Actor: "alice"})
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("transition refused").Len())
}

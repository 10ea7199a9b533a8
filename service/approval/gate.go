package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/fluxgate/internal/clock"
	"github.com/viant/fluxgate/internal/idgen"
	"github.com/viant/fluxgate/metrics"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/service/audit"
	"github.com/viant/fluxgate/service/event"
	"github.com/viant/fluxgate/tracing"
	"go.uber.org/zap"
)

const (
	// SystemActor is recorded for transitions nobody decided on.
	SystemActor = "system"

	// CancelReason is recorded for steps rejected by run cancellation.
	CancelReason = "run cancelled"
)

// Gate applies step transitions. Decisions are validated, appended to the
// audit sink and only then applied; a refused event changes nothing and
// appends nothing.
type Gate struct {
	sink      audit.Sink
	publisher *event.Publisher[Transition]
	metrics   *metrics.Recorder
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a gate recording decisions in sink.
func New(sink audit.Sink, options ...Option) *Gate {
	ret := &Gate{
		sink:   sink,
		logger: zap.NewNop(),
		now:    clock.Now,
		newID:  idgen.New,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Activate makes the pending step active. The deployment mode policy is
// evaluated once and fixed on the step: steps requiring approval move to
// waiting_approval, others straight to running. Every step before it must
// be completed.
func (g *Gate) Activate(ctx context.Context, run *model.Run, stepID string) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventActivate, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventActivate)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepPending || run.Cancelled {
		detail := ""
		if run.Cancelled {
			detail = "run was cancelled"
		}
		return nil, g.refuse(run, stepID, EventActivate, &TransitionError{StepID: stepID, From: step.Status, Event: EventActivate, Detail: detail})
	}
	for _, prior := range run.Steps {
		if prior.Order < step.Order && prior.Status != model.StepCompleted {
			detail := fmt.Sprintf("preceding step %s is %s", prior.ID, prior.Status)
			return nil, g.refuse(run, stepID, EventActivate, &TransitionError{StepID: stepID, From: step.Status, Event: EventActivate, Detail: detail})
		}
	}
	level := model.ImpactLow
	if step.Assessed() {
		level = *step.ImpactLevel
	} else if step.Mode != model.ModeAlwaysAuto {
		return nil, g.refuse(run, stepID, EventActivate, fmt.Errorf("step %s (%s): %w", stepID, step.Mode, ErrNotAssessed))
	}
	required := policy.RequiresApproval(step.Mode, level)
	if step.ApprovalRequired != nil {
		required = *step.ApprovalRequired
	} else {
		step.ApprovalRequired = &required
	}
	if step.Assessed() {
		g.metrics.Assessment(level.String(), required)
	}
	if policy.Monitored(step.Mode) && level == model.ImpactCritical {
		g.logger.Warn("monitored step proceeds without approval",
			zap.String("runId", run.ID), zap.String("stepId", stepID), zap.Stringer("impact", level), zap.Strings("warnings", step.Warnings))
	}

	now := g.now()
	from := step.Status
	if required {
		step.Status = model.StepWaitingApproval
		if run.ApprovalWindow > 0 {
			deadline := now.Add(run.ApprovalWindow)
			step.Deadline = &deadline
		}
	} else {
		step.Status = model.StepRunning
		step.StartedAt = &now
	}
	return g.applied(ctx, run, step, from, EventActivate, SystemActor, "", now), nil
}

// Approve resolves a waiting step with an approve decision and moves it to
// running. Every required check must be acknowledged and typed confirmation,
// when required, must match exactly; otherwise a *ConfirmationError is
// returned.
func (g *Gate) Approve(ctx context.Context, run *model.Run, stepID string, submission Submission) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventApprove, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventApprove)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepWaitingApproval {
		return nil, g.refuse(run, stepID, EventApprove, &TransitionError{StepID: stepID, From: step.Status, Event: EventApprove})
	}
	if strings.TrimSpace(submission.Actor) == "" {
		return nil, g.refuse(run, stepID, EventApprove, ErrMissingActor)
	}
	if confirmationErr := CheckConfirmation(step, submission); confirmationErr != nil {
		return nil, g.refuse(run, stepID, EventApprove, confirmationErr)
	}
	now := g.now()
	decision := &model.Decision{
		ID:             g.newID(),
		RunID:          run.ID,
		StepID:         stepID,
		Kind:           model.DecisionApprove,
		Actor:          submission.Actor,
		Timestamp:      now,
		SuppliedChecks: append([]string(nil), submission.Checks...),
	}
	if submission.ConfirmationText != nil {
		text := *submission.ConfirmationText
		decision.SuppliedConfirmationText = &text
	}
	if err = g.record(ctx, decision); err != nil {
		return nil, g.refuse(run, stepID, EventApprove, err)
	}
	from := step.Status
	step.Status = model.StepRunning
	step.ApprovedBy = submission.Actor
	step.StartedAt = &now
	step.Deadline = nil
	return g.applied(ctx, run, step, from, EventApprove, submission.Actor, decision.ID, now), nil
}

// Reject resolves a waiting step with a reject decision. A non-blank reason
// is required; acknowledged checks are irrelevant.
func (g *Gate) Reject(ctx context.Context, run *model.Run, stepID, actor, reason string) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventReject, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventReject)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepWaitingApproval {
		return nil, g.refuse(run, stepID, EventReject, &TransitionError{StepID: stepID, From: step.Status, Event: EventReject})
	}
	if strings.TrimSpace(reason) == "" {
		return nil, g.refuse(run, stepID, EventReject, ErrMissingRejectionReason)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, g.refuse(run, stepID, EventReject, ErrMissingActor)
	}
	return g.reject(ctx, run, step, EventReject, actor, reason)
}

// Expire times out a waiting step whose approval window elapsed.
func (g *Gate) Expire(ctx context.Context, run *model.Run, stepID string) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventExpire, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventExpire)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepWaitingApproval {
		return nil, g.refuse(run, stepID, EventExpire, &TransitionError{StepID: stepID, From: step.Status, Event: EventExpire})
	}
	now := g.now()
	message := fmt.Sprintf("approval window of %s expired", run.ApprovalWindow)
	decision := &model.Decision{
		ID:        g.newID(),
		RunID:     run.ID,
		StepID:    stepID,
		Kind:      model.DecisionTimeout,
		Actor:     SystemActor,
		Timestamp: now,
		Reason:    message,
	}
	if err = g.record(ctx, decision); err != nil {
		return nil, g.refuse(run, stepID, EventExpire, err)
	}
	from := step.Status
	step.Status = model.StepTimeout
	step.ErrorMessage = message
	step.Deadline = nil
	g.finish(step, now)
	return g.applied(ctx, run, step, from, EventExpire, SystemActor, decision.ID, now), nil
}

// Complete records executor success for a running step.
func (g *Gate) Complete(ctx context.Context, run *model.Run, stepID string) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventComplete, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventComplete)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepRunning {
		return nil, g.refuse(run, stepID, EventComplete, &TransitionError{StepID: stepID, From: step.Status, Event: EventComplete})
	}
	now := g.now()
	from := step.Status
	step.Status = model.StepCompleted
	g.finish(step, now)
	return g.applied(ctx, run, step, from, EventComplete, SystemActor, "", now), nil
}

// Fail records executor failure for a running step.
func (g *Gate) Fail(ctx context.Context, run *model.Run, stepID string, cause error) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventFail, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventFail)
	if err != nil {
		return nil, err
	}
	if step.Status != model.StepRunning {
		return nil, g.refuse(run, stepID, EventFail, &TransitionError{StepID: stepID, From: step.Status, Event: EventFail})
	}
	now := g.now()
	from := step.Status
	step.Status = model.StepFailed
	step.ErrorMessage = "step failed"
	if cause != nil {
		step.ErrorMessage = cause.Error()
	}
	g.finish(step, now)
	return g.applied(ctx, run, step, from, EventFail, SystemActor, "", now), nil
}

// Cancel rejects a non-terminal step of a cancelled run with reason
// "run cancelled". A reject decision is recorded like any other.
func (g *Gate) Cancel(ctx context.Context, run *model.Run, stepID, actor string) (ret *Transition, err error) {
	ctx, span := g.startSpan(ctx, EventCancel, run, stepID)
	defer func() { tracing.EndSpan(span, err) }()

	step, err := g.lookup(run, stepID, EventCancel)
	if err != nil {
		return nil, err
	}
	if step.Status.IsTerminal() {
		return nil, g.refuse(run, stepID, EventCancel, &TransitionError{StepID: stepID, From: step.Status, Event: EventCancel})
	}
	if !run.Cancelled {
		return nil, g.refuse(run, stepID, EventCancel, &TransitionError{StepID: stepID, From: step.Status, Event: EventCancel, Detail: "run is not cancelled"})
	}
	if strings.TrimSpace(actor) == "" {
		actor = SystemActor
	}
	return g.reject(ctx, run, step, EventCancel, actor, CancelReason)
}

func (g *Gate) reject(ctx context.Context, run *model.Run, step *model.Step, trigger Event, actor, reason string) (*Transition, error) {
	now := g.now()
	decision := &model.Decision{
		ID:        g.newID(),
		RunID:     run.ID,
		StepID:    step.ID,
		Kind:      model.DecisionReject,
		Actor:     actor,
		Timestamp: now,
		Reason:    reason,
	}
	if err := g.record(ctx, decision); err != nil {
		return nil, g.refuse(run, step.ID, trigger, err)
	}
	from := step.Status
	step.Status = model.StepRejected
	if trigger == EventCancel {
		step.CancelledBy = actor
	}
	if step.ApprovedBy == "" {
		step.RejectedBy = actor
	}
	step.ErrorMessage = reason
	step.Deadline = nil
	g.finish(step, now)
	return g.applied(ctx, run, step, from, trigger, actor, decision.ID, now), nil
}

func (g *Gate) record(ctx context.Context, decision *model.Decision) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, "audit.Append")
	defer func() { tracing.EndSpan(span, err) }()
	if err = g.sink.Append(ctx, decision); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecisionNotRecorded, decision.Kind, decision.StepID, err)
	}
	g.metrics.Decision(string(decision.Kind))
	return nil
}

// finish stamps the terminal time and, for steps that ran, the duration.
func (g *Gate) finish(step *model.Step, now time.Time) {
	step.CompletedAt = &now
	if step.StartedAt == nil {
		return
	}
	elapsed := now.Sub(*step.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	step.DurationMs = elapsed.Milliseconds()
	g.metrics.Duration(string(step.Status), elapsed)
}

func (g *Gate) lookup(run *model.Run, stepID string, trigger Event) (*model.Step, error) {
	if run == nil {
		return nil, fmt.Errorf("%w: %s (nil run)", ErrStepNotFound, stepID)
	}
	if step := run.Step(stepID); step != nil {
		return step, nil
	}
	return nil, g.refuse(run, stepID, trigger, fmt.Errorf("%w: %s in run %s", ErrStepNotFound, stepID, run.ID))
}

func (g *Gate) refuse(run *model.Run, stepID string, trigger Event, err error) error {
	g.metrics.Refusal(string(trigger), refusalReason(err))
	g.logger.Warn("transition refused",
		zap.String("runId", run.ID), zap.String("stepId", stepID), zap.String("event", string(trigger)), zap.Error(err))
	return err
}

func (g *Gate) applied(ctx context.Context, run *model.Run, step *model.Step, from model.StepStatus, trigger Event, actor, decisionID string, at time.Time) *Transition {
	ret := &Transition{
		RunID:      run.ID,
		StepID:     step.ID,
		Event:      trigger,
		From:       from,
		To:         step.Status,
		Actor:      actor,
		DecisionID: decisionID,
		At:         at,
	}
	g.metrics.Transition(string(from), string(step.Status), string(step.Mode))
	tracing.SpanFromContext(ctx).Transition(step.ID, string(from), string(step.Status))
	g.logger.Info("step transition",
		zap.String("runId", run.ID), zap.String("stepId", step.ID), zap.String("event", string(trigger)),
		zap.Stringer("from", from), zap.Stringer("to", step.Status), zap.String("actor", actor))
	if g.publisher != nil {
		evt := event.NewEvent(&event.Context{RunID: run.ID, StepID: step.ID, Topic: TopicOf(step.Status), Actor: actor, TimeTakenMs: step.DurationMs}, at, *ret)
		if err := g.publisher.Publish(ctx, evt); err != nil {
			g.logger.Warn("failed to publish transition", zap.String("stepId", step.ID), zap.Error(err))
		}
	}
	return ret
}

func (g *Gate) startSpan(ctx context.Context, trigger Event, run *model.Run, stepID string) (context.Context, *tracing.Span) {
	ctx, span := tracing.StartSpan(ctx, "approval."+string(trigger))
	attributes := map[string]string{tracing.StepID: stepID}
	if run != nil {
		attributes[tracing.RunID] = run.ID
	}
	span.WithAttributes(attributes)
	return ctx, span
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrIncompleteConfirmation):
		return "incomplete_confirmation"
	case errors.Is(err, ErrMissingRejectionReason):
		return "missing_reason"
	case errors.Is(err, ErrMissingActor):
		return "missing_actor"
	case errors.Is(err, ErrDecisionNotRecorded):
		return "audit_unavailable"
	case errors.Is(err, ErrNotAssessed):
		return "not_assessed"
	case errors.Is(err, ErrStepNotFound):
		return "step_not_found"
	}
	return "other"
}

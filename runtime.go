package fluxgate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/progress"
	"github.com/viant/fluxgate/service/approval"
	"github.com/viant/fluxgate/service/audit"
	"github.com/viant/fluxgate/service/dao"
	"github.com/viant/fluxgate/service/impact"
	"github.com/viant/fluxgate/service/processor"
	"github.com/viant/fluxgate/service/timeline"
	"github.com/viant/fluxgate/service/timer"
	"github.com/viant/fluxgate/tracing"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunOption customises a single run.
type RunOption func(o *runOptions)

type runOptions struct {
	id     string
	window *time.Duration
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.id = id }
}

// WithApprovalWindow overrides the approval window of the run; zero disables
// timeouts.
func WithApprovalWindow(window time.Duration) RunOption {
	return func(o *runOptions) { o.window = &window }
}

// runState is the serialization point of one run: every transition of the
// run happens under mux.
type runState struct {
	mux     sync.Mutex
	run     *model.Run
	line    *timeline.Timeline
	tracker *progress.Tracker
}

// Runtime drives runs through the approval gate. Transitions of one run are
// serialized; different runs proceed in parallel.
type Runtime struct {
	gate        *approval.Gate
	analyzer    *impact.Analyzer
	policy      *policy.Policy
	sink        audit.Sink
	timer       timer.Service
	processor   *processor.Service
	store       dao.Service[string, model.Run]
	logger      *zap.Logger
	window      time.Duration
	autoAdvance bool
	onProgress  func(progress.Progress)
	now         func() time.Time
	newID       func() string

	mux  sync.RWMutex
	runs map[string]*runState

	ctx    context.Context
	cancel context.CancelFunc
}

// StartRun analyzes every step of definition, creates the run and activates
// its first step. It returns a snapshot of the run.
func (r *Runtime) StartRun(ctx context.Context, definition *model.Definition, options ...RunOption) (ret *model.Run, err error) {
	ctx, span := tracing.StartSpan(ctx, "runtime.StartRun")
	defer func() { tracing.EndSpan(span, err) }()

	if err = definition.Validate(); err != nil {
		return nil, err
	}
	opts := &runOptions{}
	for _, option := range options {
		option(opts)
	}
	window, err := definition.Window(r.window)
	if err != nil {
		return nil, err
	}
	if opts.window != nil {
		window = *opts.window
	}
	if opts.id == "" {
		opts.id = r.newID()
	}
	span.WithAttributes(map[string]string{tracing.RunID: opts.id, "run.name": definition.Name})

	steps := make([]*model.Step, 0, len(definition.Steps))
	for i, stepDefinition := range definition.Steps {
		order := stepDefinition.Order
		if order == 0 {
			order = i + 1
		}
		mode := r.policy.Resolve(stepDefinition.Operation.Kind, stepDefinition.Mode)
		step := model.NewStep(stepDefinition.ID, order, mode, stepDefinition.Operation.Clone())
		assessment := r.analyzer.Analyze(ctx, step.Operation)
		if err = impact.Attach(step, assessment); err != nil {
			return nil, err
		}
		if assessment.Unclassified {
			r.logger.Warn("unclassified operation", zap.String("runId", opts.id), zap.String("stepId", step.ID), zap.String("kind", step.Operation.Kind))
		}
		steps = append(steps, step)
	}
	run, err := model.NewRun(opts.id, definition.Name, steps, window, r.now())
	if err != nil {
		return nil, err
	}
	state := &runState{run: run, line: timeline.New(run, r.gate), tracker: progress.NewTracker(r.onProgress)}

	r.mux.Lock()
	if _, ok := r.runs[run.ID]; ok {
		r.mux.Unlock()
		return nil, fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = state
	r.mux.Unlock()

	state.mux.Lock()
	defer state.mux.Unlock()
	r.logger.Info("run started", zap.String("runId", run.ID), zap.String("name", run.Name), zap.Int("steps", len(run.Steps)), zap.Duration("approvalWindow", window))
	if _, err = r.advance(ctx, state); err != nil {
		r.persist(ctx, state)
		return run.Clone(), err
	}
	r.persist(ctx, state)
	return run.Clone(), nil
}

// Approve submits an approve decision for a waiting step.
func (r *Runtime) Approve(ctx context.Context, runID, stepID string, submission approval.Submission) (*model.Step, error) {
	return r.transition(ctx, runID, stepID, func(state *runState) error {
		_, err := r.gate.Approve(ctx, state.run, stepID, submission)
		return err
	})
}

// Reject submits a reject decision for a waiting step.
func (r *Runtime) Reject(ctx context.Context, runID, stepID, actor, reason string) (*model.Step, error) {
	return r.transition(ctx, runID, stepID, func(state *runState) error {
		_, err := r.gate.Reject(ctx, state.run, stepID, actor, reason)
		return err
	})
}

// Complete reports executor success for a running step.
func (r *Runtime) Complete(ctx context.Context, runID, stepID string) (*model.Step, error) {
	return r.transition(ctx, runID, stepID, func(state *runState) error {
		_, err := r.gate.Complete(ctx, state.run, stepID)
		return err
	})
}

// Fail reports executor failure for a running step.
func (r *Runtime) Fail(ctx context.Context, runID, stepID string, cause error) (*model.Step, error) {
	return r.transition(ctx, runID, stepID, func(state *runState) error {
		_, err := r.gate.Fail(ctx, state.run, stepID, cause)
		return err
	})
}

// Advance activates the current step of the run when it is pending. It
// returns nil when the run is finished and timeline.ErrRunHalted once it
// halted.
func (r *Runtime) Advance(ctx context.Context, runID string) (*model.Step, error) {
	state, err := r.state(runID)
	if err != nil {
		return nil, err
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	step, err := r.advance(ctx, state)
	r.persist(ctx, state)
	if err != nil || step == nil {
		return nil, err
	}
	return step.Clone(), nil
}

// Cancel cancels the run: pending timers are dropped and every non-terminal
// step is rejected with reason "run cancelled".
func (r *Runtime) Cancel(ctx context.Context, runID, actor string) (*model.Run, error) {
	state, err := r.state(runID)
	if err != nil {
		return nil, err
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	run := state.run
	if run.Finished() {
		return run.Clone(), fmt.Errorf("%w: run %s is finished", approval.ErrInvalidTransition, runID)
	}
	run.Cancelled = true
	var errs []error
	for _, step := range run.Steps {
		if step.Status.IsTerminal() {
			continue
		}
		r.timer.Cancel(timer.Key(runID, step.ID))
		if _, err := r.gate.Cancel(ctx, run, step.ID, actor); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Info("run cancelled", zap.String("runId", runID), zap.String("actor", actor))
	r.persist(ctx, state)
	return run.Clone(), errors.Join(errs...)
}

// Run returns a deep copy of the run. Runs not active in this runtime are
// looked up in the run store.
func (r *Runtime) Run(ctx context.Context, runID string) (*model.Run, error) {
	state, err := r.state(runID)
	if err != nil {
		stored, loadErr := r.store.Load(ctx, runID)
		if loadErr != nil || stored == nil {
			return nil, err
		}
		return stored, nil
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	return state.run.Clone(), nil
}

// Runs lists persisted run snapshots; see criteria.ParamStatus for filtering.
func (r *Runtime) Runs(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Run, error) {
	return r.store.List(ctx, parameters...)
}

// ListPending returns every step waiting for a decision, ordered by run
// creation and step order.
func (r *Runtime) ListPending(ctx context.Context) ([]*approval.Request, error) {
	var ret []*approval.Request
	for _, state := range r.states() {
		state.mux.Lock()
		for _, step := range state.run.Steps {
			if request := approval.NewRequest(state.run, step); request != nil {
				ret = append(ret, request)
			}
		}
		state.mux.Unlock()
	}
	return ret, nil
}

// Progress returns live step counters of the run.
func (r *Runtime) Progress(ctx context.Context, runID string) (progress.Progress, error) {
	state, err := r.state(runID)
	if err != nil {
		return progress.Progress{}, err
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	return state.line.Progress(), nil
}

// AuditLog returns the decisions recorded for the run in append order.
func (r *Runtime) AuditLog(ctx context.Context, runID string) ([]*model.Decision, error) {
	return r.sink.List(ctx, runID)
}

// Shutdown stops timers and the execution workers. In-flight operations are
// cancelled; Shutdown waits for their outcome until ctx is done.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.timer.Stop()
	r.cancel()
	if r.processor == nil {
		return nil
	}
	return r.processor.Stop(ctx)
}

func (r *Runtime) transition(ctx context.Context, runID, stepID string, apply func(state *runState) error) (*model.Step, error) {
	state, err := r.state(runID)
	if err != nil {
		return nil, err
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	if err = apply(state); err != nil {
		return nil, err
	}
	step := state.run.Step(stepID)
	r.settle(ctx, state, step)
	r.persist(ctx, state)
	return step.Clone(), nil
}

// settle performs the follow-up of a step transition: it arms or drops the
// approval timer, dispatches running steps and advances after completion.
// The caller holds the run lock.
func (r *Runtime) settle(ctx context.Context, state *runState, step *model.Step) {
	key := timer.Key(state.run.ID, step.ID)
	switch step.Status {
	case model.StepWaitingApproval:
		if step.Deadline != nil {
			runID, stepID := state.run.ID, step.ID
			r.timer.Schedule(key, *step.Deadline, func() { r.expire(runID, stepID) })
		}
	case model.StepRunning:
		r.timer.Cancel(key)
		r.dispatch(state, step)
	default:
		r.timer.Cancel(key)
	}
	if step.Status == model.StepCompleted && r.autoAdvance {
		if _, err := r.advance(ctx, state); err != nil && !errors.Is(err, timeline.ErrRunHalted) {
			r.logger.Warn("failed to advance run", zap.String("runId", state.run.ID), zap.Error(err))
		}
	}
}

// advance activates the current step; the caller holds the run lock.
func (r *Runtime) advance(ctx context.Context, state *runState) (*model.Step, error) {
	current := state.line.CurrentStep()
	wasPending := current != nil && current.Status == model.StepPending
	step, err := state.line.Advance(ctx)
	if err != nil || step == nil {
		return nil, err
	}
	if wasPending {
		r.settle(ctx, state, step)
	}
	return step, nil
}

func (r *Runtime) expire(runID, stepID string) {
	state, err := r.state(runID)
	if err != nil {
		return
	}
	state.mux.Lock()
	defer state.mux.Unlock()
	ctx := r.ctx
	if _, err = r.gate.Expire(ctx, state.run, stepID); err != nil {
		// a decision was recorded first
		r.logger.Debug("approval timer lost the race", zap.String("runId", runID), zap.String("stepId", stepID), zap.Error(err))
		return
	}
	r.settle(ctx, state, state.run.Step(stepID))
	r.persist(ctx, state)
}

// dispatch hands the running step to the execution workers; the outcome is
// reported through Complete or Fail.
func (r *Runtime) dispatch(state *runState, step *model.Step) {
	if r.processor == nil {
		return
	}
	job := &processor.Job{Run: state.run.Clone(), StepID: step.ID}
	if err := r.processor.Submit(r.ctx, job); err != nil {
		r.logger.Error("failed to dispatch step", zap.String("runId", state.run.ID), zap.String("stepId", step.ID), zap.Error(err))
	}
}

func (r *Runtime) persist(ctx context.Context, state *runState) {
	state.tracker.Observe(state.run)
	if err := r.store.Save(ctx, state.run); err != nil {
		r.logger.Error("failed to persist run snapshot", zap.String("runId", state.run.ID), zap.Error(err))
	}
}

func (r *Runtime) state(runID string) (*runState, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	state, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state, nil
}

func (r *Runtime) states() []*runState {
	r.mux.RLock()
	ret := make([]*runState, 0, len(r.runs))
	for _, state := range r.runs {
		ret = append(ret, state)
	}
	r.mux.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].run.CreatedAt.Equal(ret[j].run.CreatedAt) {
			return ret[i].run.ID < ret[j].run.ID
		}
		return ret[i].run.CreatedAt.Before(ret[j].run.CreatedAt)
	})
	return ret
}

var _ approval.Decider = (*Runtime)(nil)

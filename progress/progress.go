package progress

import (
	"context"
	"sync"
	"time"

	"github.com/viant/fluxgate/model"
)

// Progress holds step counters of a single run at one point in time.
type Progress struct {
	RunID     string    `json:"runId"`
	Workflow  string    `json:"workflow,omitempty"`
	StartedAt time.Time `json:"startedAt"`

	TotalSteps     int `json:"totalSteps"`
	CompletedSteps int `json:"completedSteps"`
	PendingSteps   int `json:"pendingSteps"`
	WaitingSteps   int `json:"waitingSteps"`
	RunningSteps   int `json:"runningSteps"`
	FailedSteps    int `json:"failedSteps"`
	RejectedSteps  int `json:"rejectedSteps"`
	TimedOutSteps  int `json:"timedOutSteps"`
}

// Of computes the progress of run from its current step statuses.
func Of(run *model.Run) Progress {
	if run == nil {
		return Progress{}
	}
	ret := Progress{RunID: run.ID, Workflow: run.Name, StartedAt: run.CreatedAt, TotalSteps: len(run.Steps)}
	for _, step := range run.Steps {
		switch step.Status {
		case model.StepPending:
			ret.PendingSteps++
		case model.StepWaitingApproval:
			ret.WaitingSteps++
		case model.StepRunning:
			ret.RunningSteps++
		case model.StepCompleted:
			ret.CompletedSteps++
		case model.StepFailed:
			ret.FailedSteps++
		case model.StepRejected:
			ret.RejectedSteps++
		case model.StepTimeout:
			ret.TimedOutSteps++
		}
	}
	return ret
}

// Resolved returns the number of steps in a terminal state.
func (p Progress) Resolved() int {
	return p.CompletedSteps + p.FailedSteps + p.RejectedSteps + p.TimedOutSteps
}

func (p Progress) counters() [8]int {
	return [8]int{p.TotalSteps, p.CompletedSteps, p.PendingSteps, p.WaitingSteps, p.RunningSteps, p.FailedSteps, p.RejectedSteps, p.TimedOutSteps}
}

// Tracker keeps the last observed progress of a run. It is safe for
// concurrent use.
type Tracker struct {
	mux      sync.Mutex
	last     Progress
	seen     bool
	onChange func(Progress)
}

// NewTracker creates a tracker; onChange may be nil.
func NewTracker(onChange func(Progress)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Observe recomputes progress from run. If counters changed since the last
// observation the onChange callback is invoked outside the critical section
// so that slow callbacks do not block transitions of other runs.
func (t *Tracker) Observe(run *model.Run) Progress {
	current := Of(run)
	if t == nil {
		return current
	}
	t.mux.Lock()
	changed := !t.seen || t.last.counters() != current.counters()
	t.last = current
	t.seen = true
	cb := t.onChange
	t.mux.Unlock()

	if changed && cb != nil {
		cb(current)
	}
	return current
}

// Snapshot returns the last observed progress.
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.last
}

// OnChange registers a callback invoked after every change. Passing nil
// disables the callback.
func (t *Tracker) OnChange(cb func(Progress)) {
	if t == nil {
		return
	}
	t.mux.Lock()
	t.onChange = cb
	t.mux.Unlock()
}

// ----------------------------------------------------------------------------
// Context helpers
// ----------------------------------------------------------------------------

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a tracker, embeds it in a derived context and returns
// both.
func WithNewTracker(ctx context.Context, onChange func(Progress)) (context.Context, *Tracker) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := NewTracker(onChange)
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Tracker, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Tracker)
	return tr, ok
}

// ObserveCtx looks up the tracker in ctx (if any) and observes run.
func ObserveCtx(ctx context.Context, run *model.Run) {
	if tr, ok := FromContext(ctx); ok {
		tr.Observe(run)
	}
}

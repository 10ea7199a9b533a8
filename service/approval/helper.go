package approval

import (
	"context"
	"time"

	"github.com/viant/fluxgate/model"
)

// Decider is the runtime surface the auto decider drives.
type Decider interface {
	ListPending(ctx context.Context) ([]*Request, error)
	Approve(ctx context.Context, runID, stepID string, submission Submission) (*model.Step, error)
	Reject(ctx context.Context, runID, stepID, actor, reason string) (*model.Step, error)
}

// DecisionFunc decides what to do with a pending request.
// Return (true,  "") to approve
//
//	(false, "…") to reject with reason.
type DecisionFunc func(r *Request) (approved bool, reason string)

// AutoDecider starts a goroutine that polls ListPending and applies fn to
// every request. Approvals acknowledge every required check and echo the
// confirmation text. It returns stop() – call it (or cancel ctx) to exit.
func AutoDecider(ctx context.Context,
	svc Decider,
	actor string,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requests, _ := svc.ListPending(ctx)
				for _, r := range requests {
					if ok, reason := fn(r); ok {
						_, _ = svc.Approve(ctx, r.RunID, r.StepID, r.Submission(actor))
					} else {
						_, _ = svc.Reject(ctx, r.RunID, r.StepID, actor, reason)
					}
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove automatically approves all pending requests
func AutoApprove(ctx context.Context, svc Decider, actor string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*Request) (bool, string) { return true, "" }, interval)
}

// AutoReject automatically rejects all pending requests with the given reason
func AutoReject(ctx context.Context, svc Decider, actor, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*Request) (bool, string) { return false, reason }, interval)
}

// Submission returns a submission acknowledging everything r requires.
func (r *Request) Submission(actor string) Submission {
	ret := Submission{Actor: actor, Checks: append([]string(nil), r.RequiredChecks...)}
	if r.RequiresTypedConfirmation {
		text := r.ConfirmationText
		ret.ConfirmationText = &text
	}
	return ret
}

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/viant/fluxgate/model"
)

// Listener is invoked once a step operation finished, whether it returned an
// error or not.
//
// For convenience the listener is defined as a function type rather than an
// interface; callers can pass a plain function literal.
type Listener func(run *model.Run, step *model.Step, err error)

// WriterListener returns a listener writing the step and its outcome as JSON
// lines to w.
func WriterListener(w io.Writer) Listener {
	return func(run *model.Run, step *model.Step, err error) {
		if step == nil {
			return
		}
		record := map[string]interface{}{"stepId": step.ID, "kind": "", "ok": err == nil}
		if run != nil {
			record["runId"] = run.ID
		}
		if step.Operation != nil {
			record["kind"] = step.Operation.Kind
		}
		if err != nil {
			record["error"] = err.Error()
		}
		data, _ := json.Marshal(record)
		fmt.Fprintln(w, string(data))
	}
}

// StdoutListener prints every executed step to standard output.
func StdoutListener(run *model.Run, step *model.Step, err error) {
	WriterListener(os.Stdout)(run, step, err)
}

// Option is used to customise the executor instance.
type Option func(*service)

// WithListener sets the listener invoked after every executed step. Passing
// nil disables the callback entirely.
func WithListener(l Listener) Option {
	return func(s *service) {
		s.listener = l
	}
}

// Service runs the operation of a running step. The run and step are
// snapshots; implementations must not rely on mutating them.
type Service interface {
	Execute(ctx context.Context, run *model.Run, step *model.Step) error
}

// Func adapts a function to Service.
type Func func(ctx context.Context, run *model.Run, step *model.Step) error

// Execute calls f.
func (f Func) Execute(ctx context.Context, run *model.Run, step *model.Step) error {
	return f(ctx, run, step)
}

// service decorates a delegate with panic recovery and a listener.
type service struct {
	delegate Service
	listener Listener
}

// Execute executes the step operation.
func (s *service) Execute(ctx context.Context, run *model.Run, step *model.Step) (err error) {
	if step == nil || step.Operation == nil {
		id := ""
		if step != nil {
			id = step.ID
		}
		return fmt.Errorf("%w: %s", ErrNoOperation, id)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: step %s: %v", ErrExecutorPanic, step.ID, r)
		}
		if s.listener != nil {
			s.listener(run, step, err)
		}
	}()
	return s.delegate.Execute(ctx, run, step)
}

// NewService wraps delegate.
func NewService(delegate Service, opts ...Option) Service {
	s := &service{delegate: delegate}
	for _, o := range opts {
		o(s)
	}
	return s
}

package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/executor"
	"github.com/viant/fluxgate/service/messaging"
	"github.com/viant/fluxgate/service/messaging/memory"
	"github.com/viant/fluxgate/tracing"
	"go.uber.org/zap"
)

// Backoff strategies.
const (
	BackoffNone        = "none"
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// maxBackoff caps the exponential delay when MaxDelay is not set.
const maxBackoff = time.Hour

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers executing steps
	WorkerCount int

	// MaxRetries is the number of times a failed operation is re-executed
	// before the step is reported failed.
	MaxRetries int

	// RetryDelay is the base delay between attempts
	RetryDelay time.Duration

	// Backoff is one of none, fixed or exponential.
	Backoff string

	// Multiplier grows the exponential delay (default 2).
	Multiplier float64

	// MaxDelay caps the exponential delay when positive, one hour otherwise.
	MaxDelay time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		RetryDelay:  time.Second,
		Backoff:     BackoffFixed,
	}
}

// Job is a running step handed over to the executor. Run is a snapshot taken
// when the step started.
type Job struct {
	Run    *model.Run `json:"run"`
	StepID string     `json:"stepId"`
}

// Reporter receives execution outcomes.
type Reporter interface {
	Complete(ctx context.Context, runID, stepID string) (*model.Step, error)
	Fail(ctx context.Context, runID, stepID string, cause error) (*model.Step, error)
}

// Service executes jobs on a pool of workers.
type Service struct {
	config   Config
	queue    messaging.Queue[Job]
	executor executor.Service
	reporter Reporter
	logger   *zap.Logger

	mux      sync.Mutex
	started  bool
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
}

type worker struct {
	id      int
	service *Service
	ctx     context.Context
}

// New creates a processor executing jobs with exec and reporting to reporter.
func New(exec executor.Service, reporter Reporter, options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	s.executor = exec
	s.reporter = reporter
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = DefaultConfig().WorkerCount
	}
	if s.queue == nil {
		config := memory.DefaultConfig()
		config.QueueBuffer = 1024
		// outcomes are reported by the worker, jobs are never redelivered
		config.MaxRetries = 0
		s.queue = memory.NewQueue[Job](config)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Start launches the workers; it is a no-op when already started.
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.WorkerCount; i++ {
		w := &worker{id: i, service: s, ctx: ctx}
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Submit enqueues a job.
func (s *Service) Submit(ctx context.Context, job *Job) error {
	if job == nil || job.Run == nil || job.Run.Step(job.StepID) == nil {
		return fmt.Errorf("invalid job")
	}
	return s.queue.Publish(ctx, job)
}

// Stop cancels the workers and waits for them until ctx is done. In-flight
// operations observe the cancellation through their context.
func (s *Service) Stop(ctx context.Context) error {
	s.mux.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mux.Unlock()
	done := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run processes messages from the queue
func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || w.ctx.Err() != nil {
				return
			}
			w.service.logger.Warn("failed to consume job", zap.Int("worker", w.id), zap.Error(err))
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if msg == nil {
			continue
		}
		if err = w.service.process(w.ctx, msg); err != nil {
			w.service.logger.Error("failed to process job", zap.Int("worker", w.id), zap.String("messageId", msg.ID()), zap.Error(err))
		}
	}
}

func (s *Service) process(ctx context.Context, msg messaging.Message[Job]) (err error) {
	job := msg.T()
	step := job.Run.Step(job.StepID)
	if step == nil {
		return msg.Ack()
	}
	ctx, span := tracing.StartClientSpan(ctx, "processor.Execute")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{tracing.RunID: job.Run.ID, tracing.StepID: step.ID})

	runID, stepID := job.Run.ID, step.ID
	execErr := s.execute(ctx, job.Run, step)
	if execErr != nil && ctx.Err() != nil {
		// the step stays running; only the executor decides a failure
		s.logger.Info("step execution interrupted", zap.String("runId", runID), zap.String("stepId", stepID), zap.Error(execErr))
		return msg.Ack()
	}
	if execErr != nil {
		s.logger.Error("step execution failed", zap.String("runId", runID), zap.String("stepId", stepID), zap.Error(execErr))
		_, err = s.reporter.Fail(ctx, runID, stepID, execErr)
	} else {
		_, err = s.reporter.Complete(ctx, runID, stepID)
	}
	if err != nil {
		s.logger.Debug("execution outcome not applied", zap.String("runId", runID), zap.String("stepId", stepID), zap.Error(err))
	}
	return msg.Ack()
}

func (s *Service) execute(ctx context.Context, run *model.Run, step *model.Step) error {
	for attempt := 0; ; attempt++ {
		err := s.executor.Execute(ctx, run, step)
		if err == nil {
			return nil
		}
		retry, delay := s.shouldRetry(attempt)
		if !retry || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("retrying step execution",
			zap.String("runId", run.ID), zap.String("stepId", step.ID),
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

// shouldRetry returns (retry?, delay) after attempts failed executions.
func (s *Service) shouldRetry(attempts int) (bool, time.Duration) {
	cfg := s.config
	if strings.ToLower(cfg.Backoff) == BackoffNone || attempts >= cfg.MaxRetries {
		return false, 0
	}
	switch strings.ToLower(cfg.Backoff) {
	case BackoffExponential:
		mult := cfg.Multiplier
		if mult <= 1 {
			mult = 2
		}
		limit := cfg.MaxDelay
		if limit <= 0 {
			limit = maxBackoff
		}
		delay := float64(cfg.RetryDelay) * math.Pow(mult, float64(attempts))
		if delay > float64(limit) {
			return true, limit
		}
		return true, time.Duration(delay)
	default: // fixed
		return true, cfg.RetryDelay
	}
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/messaging"
	"go.uber.org/zap"
)

// Outbox is a Sink that records decisions in a primary sink and then queues
// them for a Forwarder. The primary sink is authoritative: a decision it
// accepted is never refused because the queue is unavailable.
type Outbox struct {
	primary Sink
	queue   messaging.Queue[model.Decision]
	logger  *zap.Logger
}

// NewOutbox wraps primary.
func NewOutbox(primary Sink, queue messaging.Queue[model.Decision], logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{primary: primary, queue: queue, logger: logger}
}

// Append implements Sink.
func (o *Outbox) Append(ctx context.Context, decision *model.Decision) error {
	if err := o.primary.Append(ctx, decision); err != nil {
		return err
	}
	if err := o.queue.Publish(ctx, decision); err != nil {
		o.logger.Error("failed to queue decision for forwarding",
			zap.String("decisionId", decision.ID), zap.String("runId", decision.RunID), zap.Error(err))
	}
	return nil
}

// List implements Sink by reading the primary sink.
func (o *Outbox) List(ctx context.Context, runID string) ([]*model.Decision, error) {
	return o.primary.List(ctx, runID)
}

// Forwarder appends queued decisions to a downstream sink. Delivery is at
// least once; sinks drop duplicates by decision id.
type Forwarder struct {
	queue  messaging.Queue[model.Decision]
	sink   Sink
	logger *zap.Logger
	idle   time.Duration
}

// NewForwarder creates a forwarder draining queue into sink.
func NewForwarder(queue messaging.Queue[model.Decision], sink Sink, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{queue: queue, sink: sink, logger: logger, idle: 100 * time.Millisecond}
}

// Forward processes a single message. It returns false when the queue had
// nothing to deliver.
func (f *Forwarder) Forward(ctx context.Context) (bool, error) {
	message, err := f.queue.Consume(ctx)
	if err != nil {
		return false, err
	}
	if message == nil {
		return false, nil
	}
	decision := message.T()
	if err = f.sink.Append(ctx, decision); err != nil {
		f.logger.Warn("failed to forward decision",
			zap.String("decisionId", decision.ID), zap.Int("attempts", message.Attempts()), zap.Error(err))
		if nackErr := message.Nack(err); nackErr != nil {
			return true, fmt.Errorf("failed to nack decision %s: %w", decision.ID, nackErr)
		}
		return true, nil
	}
	return true, message.Ack()
}

// Run forwards decisions until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		delivered, err := f.Forward(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			f.logger.Error("decision forwarder failure", zap.Error(err))
		}
		if delivered {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.idle):
		}
	}
}

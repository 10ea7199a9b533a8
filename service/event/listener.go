package event

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// idleDelay is how long a listener waits before polling a non-blocking queue
// again.
const idleDelay = 50 * time.Millisecond

// Listener drains a publisher's queue and hands events matching its topics to
// handler. Events of other topics are consumed and dropped.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	topics    []string
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger *zap.Logger, topics ...string) *Listener[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		topics:    topics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop terminates the consume loop and waits for it to exit.
func (l *Listener[T]) Stop() {
	l.cancel()
	<-l.done
}

func (l *Listener[T]) Start() {
	go func() {
		defer close(l.done)
		for {
			event, err := l.publisher.Consume(l.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.logger.Warn("failed to consume event", zap.Error(err))
				continue
			}
			if event == nil {
				select {
				case <-l.ctx.Done():
					return
				case <-time.After(idleDelay):
				}
				continue
			}
			if event.Matches(l.topics) {
				l.handler(event)
			}
		}
	}()
}

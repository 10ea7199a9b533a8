package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/fluxgate/service/messaging"
)

// ErrQueueFull is returned by Publish on a full DropWhenFull queue.
var ErrQueueFull = errors.New("queue is full")

// Config for memory queue implementation
type Config struct {
	MaxRetries   int
	RetryDelay   time.Duration
	DeadLetter   bool
	QueueBuffer  int
	// DropWhenFull makes Publish fail with ErrQueueFull instead of blocking.
	DropWhenFull bool
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 256,
	}
}

// Message is an in-memory queue entry.
type Message[T any] struct {
	id       string
	payload  T
	queue    *Queue[T]
	attempts int
	lastErr  error

	mu        sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string    { return m.id }
func (m *Message[T]) T() *T         { return &m.payload }
func (m *Message[T]) Attempts() int { return m.attempts }

// Err returns the error the message was last negatively acknowledged with.
func (m *Message[T]) Err() error { return m.lastErr }

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack schedules a redelivery after the retry delay, or moves the message to
// the dead letter list once MaxRetries is exceeded.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	m.lastErr = err

	q := m.queue
	if m.attempts+1 > q.config.MaxRetries {
		if q.config.DeadLetter {
			q.dlqMu.Lock()
			q.dlq = append(q.dlq, m)
			q.dlqMu.Unlock()
		}
		return nil
	}
	retry := &Message[T]{id: m.id, payload: m.payload, queue: q, attempts: m.attempts + 1, lastErr: err}
	time.AfterFunc(q.config.RetryDelay, func() {
		q.messages <- retry
	})
	return nil
}

// Queue is a buffered channel backed messaging.Queue.
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config

	dlqMu sync.Mutex
	dlq   []*Message[T]
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish enqueues a copy of t; it blocks while the buffer is full unless
// DropWhenFull is set.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("payload was nil")
	}
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q}
	if q.config.DropWhenFull {
		select {
		case q.messages <- msg:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks until a message is available or ctx is done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DeadLetters returns payloads that exhausted their retry budget.
func (q *Queue[T]) DeadLetters() []*Message[T] {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]*Message[T](nil), q.dlq...)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)

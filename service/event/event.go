package event

import "time"

// Context identifies the run and step an event is about.
type Context struct {
	RunID       string `json:"runId"`
	StepID      string `json:"stepId,omitempty"`
	Topic       string `json:"topic"`
	Actor       string `json:"actor,omitempty"`
	TimeTakenMs int64  `json:"timeTakenMs,omitempty"`
}

// Event is a typed payload with its context.
type Event[T any] struct {
	Context   *Context  `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
	Data      T         `json:"data"`
}

// NewEvent creates an event; a zero createdAt is stamped on publish.
func NewEvent[T any](context *Context, createdAt time.Time, data T) *Event[T] {
	return &Event[T]{Context: context, CreatedAt: createdAt, Data: data}
}

// Matches reports whether the event topic is one of topics. Every event
// matches an empty topic list.
func (e *Event[T]) Matches(topics []string) bool {
	if len(topics) == 0 {
		return true
	}
	if e.Context == nil {
		return false
	}
	for _, topic := range topics {
		if topic == e.Context.Topic {
			return true
		}
	}
	return false
}

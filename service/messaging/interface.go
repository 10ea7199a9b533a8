package messaging

import (
	"context"
)

// Vendor names a queue implementation.
type Vendor string

const (
	VendorMemory Vendor = "memory"
	VendorFs     Vendor = "fs"
)

// Queue is a typed at-least-once queue. Consumers acknowledge each message;
// a negatively acknowledged message is redelivered until its retry budget is
// exhausted.
type Queue[T any] interface {
	// Publish enqueues a copy of t.
	Publish(ctx context.Context, t *T) error

	// Consume returns the next message. Implementations that cannot block
	// return (nil, nil) when nothing is pending.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a delivered queue entry.
type Message[T any] interface {
	// ID returns the message identifier, stable across redeliveries.
	ID() string

	// T returns the payload.
	T() *T

	// Attempts returns how many times the message was delivered before.
	Attempts() int

	// Ack marks the message as processed.
	Ack() error

	// Nack marks the message as failed so that it can be redelivered.
	Nack(err error) error
}

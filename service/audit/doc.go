// Package audit defines the append-only decision record. Every approve,
// reject and timeout is appended to a Sink before the step it resolves
// changes status, so the record is the authority on who decided what.
//
// Sub-packages provide sinks backed by memory, SQL databases, afs storage
// and Redis. Outbox and Forwarder relay decisions to a second sink through a
// messaging queue.
package audit

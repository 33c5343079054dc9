// Package notifier delivers new-tag events to a sink.
//
// A Notify call either delivers the event or returns an error; there is no
// internal queue and no retry. The poller leaves the entity uncommitted on
// error, so the next cycle recomputes the same event and calls Notify again.
// Sinks therefore see at-least-once delivery; the NATS sink passes
// Event.DedupKey as the message id so JetStream can drop repeats.
//
// # Sinks
//
//   - telegram: sendMessage in HTML parse mode
//   - nats: JetStream publish of a JSON document
//   - log: writes the event to the log only
//
// Every sink is wrapped by a token-bucket limiter.
package notifier

// Package audit provides the structured audit event model and the
// asynchronous dispatcher that forwards events to a host-supplied sink.
//
// # Architecture boundaries
//
// This package owns event buffering and delivery. Event vocabulary and
// emission policy live in the root package.
//
// # What this package must NOT do
//
//   - Block engine operations on slow sinks (buffering decouples them).
//   - Import authcore or any sibling package.
package audit

// Package audit carries per-rejection diagnostic records from the engine to
// operator-facing sinks without blocking the protocol path.
//
// # Components
//
//   - [Event]: one record per rejected command, holding the internal detail
//     that is never sent to the client.
//   - [Sink]: consumer interface (slog, JSON lines, channel, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full
//     semantics.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the engine does that.
//   - Import goSubmit or any sibling internal package.
package audit

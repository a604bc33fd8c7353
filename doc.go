// Package goSubmit is an authenticated mail-submission session engine.
//
// An [Engine] tracks one session per connection, applies protocol commands
// through the session state machine, runs the credential pipeline on AUTH
// and turns every internal failure into one of a small set of client
// replies. The transport (see package smtpd) calls the Engine and relays the
// [Outcome] it gets back.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Commands for one session ID must be issued serially,
// which the protocol guarantees.
//
// # Architecture boundaries
//
// goSubmit is the public surface. It exposes [Engine], [Builder], [Config],
// [Outcome] and [MetricsSnapshot]. Credential lookup, session persistence and
// downstream submission are collaborators injected through the Builder.
//
// # What this package must NOT do
//
//   - Relay internal error text, store errors or credential details to a peer.
//   - Hold the raw credential secret anywhere but the session-scoped vault.
//   - Import smtpd or any package that re-imports goSubmit.
package goSubmit

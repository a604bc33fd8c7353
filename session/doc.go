// Package session holds the per-connection submission state machine and the
// stores that persist it between protocol commands.
//
// A [Session] is plain data. [Machine] applies protocol commands to it,
// validating every precondition before mutating anything, so a rejected
// command leaves the record exactly as it was. Stores ([MemoryStore],
// [RedisStore]) keep records keyed by session ID and hand out copies.
//
// The engine owns a session between Get and Update; there is a single writer
// per session ID because the protocol itself is strictly serial.
package session

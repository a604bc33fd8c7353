// Package taxonomy maps internal failure causes onto the small set of SMTP replies a
// remote peer is allowed to see.
//
// Two tables live here. The authentication table is keyed by [Reason], a closed
// enumeration with one entry per reason. The submission table is keyed by [Category] and
// translates downstream submission failures; categories that are not in the table fall
// back to keyword matching on the failure text and finally to a temporary failure.
//
// # Anti-enumeration
//
// Every credential, principal and organization failure except scope insufficiency shares
// one reply. Distinguishing detail is carried only by [Entry.Detail], which is for logs.
//
// # What this package must NOT do
//
//   - Perform I/O or hold state.
//   - Build a [Reply] from free text supplied by a caller.
package taxonomy

// Package submit turns a received DATA payload into a validated [Message]
// and hands it to a downstream [Submitter].
//
// Failures are reported as [*Error] values carrying a taxonomy category so
// the engine can pick the client reply without looking at free text.
package submit

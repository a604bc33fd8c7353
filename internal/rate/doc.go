// Package rate holds the Redis-backed fixed-window counters that throttle
// repeated authentication failures.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - "af:" counts failures per principal
//   - "afi:" counts failures per remote IP
//
// # What this package must NOT do
//
//   - Decide which failures count; the engine filters by failure family.
//   - Be imported outside the goSubmit module.
package rate

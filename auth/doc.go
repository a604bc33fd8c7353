// Package auth runs the credential validation pipeline that gates the authenticated
// session state.
//
// # Step order
//
// Steps run strictly in order and stop at the first failure: principal format, secret
// format, credential lookup, revocation, expiry, scope, principal lookup, principal
// status, organization match. Format failures never reach the store.
//
// # Fault containment
//
// Each lookup is bounded by [Config.LookupTimeout]; a timeout or backend fault becomes
// taxonomy.ReasonStoreUnavailable and is never conflated with "not found". A panic
// anywhere inside [Pipeline.Authenticate] is recovered and reported as
// taxonomy.ReasonServiceUnavailable.
package auth

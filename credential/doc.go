// Package credential holds the records the authentication pipeline reads: API-key-like
// credentials, inbox-like principals, and the [Identity] produced by a successful run.
//
// It also provides the syntactic format checks for both credential fields and two
// [Lookup] implementations: [MemoryStore] for tests and single-node deployments and
// [RedisStore], which indexes credentials by a SHA-256 fingerprint of the secret and
// keeps an argon2id hash of the secret next to each record.
//
// # What this package must NOT do
//
//   - Decide whether a credential is acceptable. Revocation, expiry, scope and status
//     checks belong to the auth package.
//   - Persist raw secrets.
package credential

package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("credential record not found")
	// ErrStoreUnavailable wraps backend faults so callers can tell them apart from
	// ErrNotFound.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrDuplicate is returned when provisioning a record that already exists.
	ErrDuplicate = errors.New("credential record already exists")
)

// Lookup is the read side the authentication pipeline depends on.
type Lookup interface {
	// LookupCredential resolves a credential by its raw secret.
	LookupCredential(ctx context.Context, secret string) (*Credential, error)
	// LookupPrincipal resolves a principal by identifier or address.
	LookupPrincipal(ctx context.Context, identifier string) (*Principal, error)
}

// Fingerprint is the index key for a secret. It is a plain SHA-256 digest so lookups
// stay deterministic; the slow hash is kept separately for verification.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

package credential

import (
	"slices"
	"time"
)

// Status is the lifecycle status of a principal.
type Status string

const (
	StatusActive    Status = "active"
	StatusDisabled  Status = "disabled"
	StatusSuspended Status = "suspended"
)

// Credential is an issued API key. Records are immutable once issued except for
// RevokedAt.
type Credential struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Scopes    []string   `json:"scopes"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Revoked reports whether a revocation timestamp is present.
func (c *Credential) Revoked() bool {
	return c != nil && c.RevokedAt != nil
}

// ExpiredAt reports whether the credential expiry lies strictly before now. A missing
// expiry never expires.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return c != nil && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Scopes = slices.Clone(c.Scopes)
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// Principal is a mail identity (an inbox) that credentials authenticate against.
type Principal struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	OrgID       string    `json:"org_id"`
	Status      Status    `json:"status"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a copy.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Identity is the outcome of a successful authentication. It never carries the secret.
type Identity struct {
	PrincipalID  string
	OrgID        string
	Address      string
	CredentialID string
}

// NewIdentity builds the identity for a verified principal and credential pair.
func NewIdentity(p *Principal, c *Credential) Identity {
	return Identity{
		PrincipalID:  p.ID,
		OrgID:        p.OrgID,
		Address:      p.Address,
		CredentialID: c.ID,
	}
}

// IsZero reports whether id is the zero Identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

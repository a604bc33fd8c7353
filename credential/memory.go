package credential

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Lookup with provisioning helpers. It is safe for
// concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential // fingerprint -> record
	credIndex   map[string]string      // credential id -> fingerprint
	principals  map[string]*Principal
	addresses   map[string]string // lower-cased address -> principal id
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*Credential),
		credIndex:   make(map[string]string),
		principals:  make(map[string]*Principal),
		addresses:   make(map[string]string),
	}
}

// PutCredential registers c under secret.
func (m *MemoryStore) PutCredential(_ context.Context, secret string, c *Credential) error {
	fp := Fingerprint(secret)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.credentials[fp]; exists {
		return ErrDuplicate
	}
	if _, exists := m.credIndex[c.ID]; exists {
		return ErrDuplicate
	}
	m.credentials[fp] = c.Clone()
	m.credIndex[c.ID] = fp
	return nil
}

// RevokeCredential stamps the revocation time on the credential with the given id.
func (m *MemoryStore) RevokeCredential(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp, ok := m.credIndex[id]
	if !ok {
		return ErrNotFound
	}
	revoked := at
	m.credentials[fp].RevokedAt = &revoked
	return nil
}

// PutPrincipal registers or replaces p.
func (m *MemoryStore) PutPrincipal(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.principals[p.ID]; ok {
		delete(m.addresses, strings.ToLower(prev.Address))
	}
	m.principals[p.ID] = p.Clone()
	if p.Address != "" {
		m.addresses[strings.ToLower(p.Address)] = p.ID
	}
	return nil
}

func (m *MemoryStore) LookupCredential(ctx context.Context, secret string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := Fingerprint(secret)

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.credentials[fp]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStore) LookupPrincipal(ctx context.Context, identifier string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id := identifier
	if IsAddress(identifier) {
		resolved, ok := m.addresses[strings.ToLower(identifier)]
		if !ok {
			return nil, ErrNotFound
		}
		id = resolved
	}
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

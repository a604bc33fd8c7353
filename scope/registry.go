package scope

import (
	"errors"
	"strings"
	"sync"
)

const maxScopes = 64

var (
	// ErrFrozen is returned by Register after Freeze.
	ErrFrozen = errors.New("scope registry frozen")
	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("scope already registered")
	// ErrLimit is returned when the registry is full.
	ErrLimit = errors.New("scope limit exceeded")
)

// Registry maps scope names to bit positions. Names are matched case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns a registry pre-populated with names.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
	for _, name := range names {
		if _, err := r.Register(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register assigns the next free bit to name and returns it.
func (r *Registry) Register(name string) (int, error) {
	key := normalize(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrFrozen
	}
	if key == "" {
		return -1, errors.New("scope name cannot be empty")
	}
	if _, exists := r.nameToBit[key]; exists {
		return -1, ErrDuplicate
	}
	next := len(r.nameToBit)
	if next >= maxScopes {
		return -1, ErrLimit
	}
	r.nameToBit[key] = next
	r.bitToName[next] = key
	return next, nil
}

// Bit returns the bit for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[normalize(name)]
	return bit, ok
}

// Name returns the scope registered at bit.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// SetOf resolves names into a Set, skipping names that are not registered.
func (r *Registry) SetOf(names []string) Set {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Set
	for _, name := range names {
		if bit, ok := r.nameToBit[normalize(name)]; ok {
			s = s.With(bit)
		}
	}
	return s
}

// Names expands s back into registered names in bit order.
func (r *Registry) Names(s Set) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, s.Len())
	for bit := 0; bit < maxScopes; bit++ {
		if s.Has(bit) {
			if name, ok := r.bitToName[bit]; ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered scopes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

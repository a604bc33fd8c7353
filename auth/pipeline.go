package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
	"github.com/MrEthical07/goSubmit/scope"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

// DefaultScope is the capability a credential needs to submit mail.
const DefaultScope = "smtp"

// Config tunes a Pipeline.
type Config struct {
	// RequiredScopes lists capability names of which a credential must hold at least one.
	RequiredScopes []string
	// KnownScopes are registered alongside RequiredScopes.
	KnownScopes   []string
	LookupTimeout time.Duration
}

// Pipeline authenticates principal and secret pairs. It is safe for concurrent use.
type Pipeline struct {
	lookup   credential.Lookup
	registry *scope.Registry
	required scope.Set
	timeout  time.Duration
	now      func() time.Time
	observer Observer
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithObserver installs a per-step observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New builds a Pipeline over lookup.
func New(lookup credential.Lookup, cfg Config, opts ...Option) (*Pipeline, error) {
	if lookup == nil {
		return nil, errors.New("credential lookup required")
	}
	required := cfg.RequiredScopes
	if len(required) == 0 {
		required = []string{DefaultScope}
	}

	registry, err := scope.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, name := range append(append([]string{}, required...), cfg.KnownScopes...) {
		if _, err := registry.Register(name); err != nil && !errors.Is(err, scope.ErrDuplicate) {
			return nil, fmt.Errorf("register scope %q: %w", name, err)
		}
	}
	registry.Freeze()

	p := &Pipeline{
		lookup:   lookup,
		registry: registry,
		required: registry.SetOf(required),
		timeout:  cfg.LookupTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Authenticate runs every step in order. On success it returns the identity; on
// failure the error is a *Failure.
func (p *Pipeline) Authenticate(ctx context.Context, principalID, secret string) (id credential.Identity, err error) {
	step := StepPrincipalFormat
	defer func() {
		if r := recover(); r != nil {
			id = credential.Identity{}
			err = fail(step, taxonomy.ReasonServiceUnavailable, fmt.Errorf("panic: %v", r))
			p.observe(step, err)
		}
	}()

	if !credential.ValidPrincipalID(principalID) {
		return id, p.reject(step, taxonomy.ReasonPrincipalFormatInvalid, nil)
	}
	p.observe(step, nil)

	step = StepSecretFormat
	if !credential.ValidSecret(secret) {
		return id, p.reject(step, taxonomy.ReasonCredentialFormatInvalid, nil)
	}
	p.observe(step, nil)

	step = StepCredentialLookup
	cred, err := p.lookupCredential(ctx, secret)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return id, p.reject(step, taxonomy.ReasonCredentialNotFound, nil)
		}
		return id, p.reject(step, storeFault(err), err)
	}
	p.observe(step, nil)

	step = StepRevocation
	if cred.Revoked() {
		return id, p.reject(step, taxonomy.ReasonCredentialRevoked, nil)
	}
	p.observe(step, nil)

	step = StepExpiry
	if cred.ExpiredAt(p.now()) {
		return id, p.reject(step, taxonomy.ReasonCredentialExpired, nil)
	}
	p.observe(step, nil)

	step = StepScope
	if !p.registry.SetOf(cred.Scopes).HasAny(p.required) {
		return id, p.reject(step, taxonomy.ReasonCredentialScopeInsufficient, nil)
	}
	p.observe(step, nil)

	step = StepPrincipalLookup
	principal, err := p.lookupPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return id, p.reject(step, taxonomy.ReasonPrincipalNotFound, nil)
		}
		return id, p.reject(step, storeFault(err), err)
	}
	p.observe(step, nil)

	step = StepPrincipalStatus
	switch principal.Status {
	case credential.StatusDisabled:
		return id, p.reject(step, taxonomy.ReasonPrincipalDisabled, nil)
	case credential.StatusSuspended:
		return id, p.reject(step, taxonomy.ReasonPrincipalSuspended, nil)
	}
	p.observe(step, nil)

	step = StepOrganization
	if principal.OrgID != cred.OrgID {
		return id, p.reject(step, taxonomy.ReasonOrganizationMismatch, nil)
	}
	p.observe(step, nil)

	step = StepComplete
	return credential.NewIdentity(principal, cred), nil
}

// RequiredScopes returns the names a credential may hold to pass the scope step.
func (p *Pipeline) RequiredScopes() []string {
	return p.registry.Names(p.required)
}

func (p *Pipeline) lookupCredential(ctx context.Context, secret string) (*credential.Credential, error) {
	c, err := bounded(ctx, p.timeout, func(ctx context.Context) (*credential.Credential, error) {
		return p.lookup.LookupCredential(ctx, secret)
	})
	if err == nil && c == nil {
		return nil, credential.ErrNotFound
	}
	return c, err
}

func (p *Pipeline) lookupPrincipal(ctx context.Context, identifier string) (*credential.Principal, error) {
	pr, err := bounded(ctx, p.timeout, func(ctx context.Context) (*credential.Principal, error) {
		return p.lookup.LookupPrincipal(ctx, identifier)
	})
	if err == nil && pr == nil {
		return nil, credential.ErrNotFound
	}
	return pr, err
}

// storeFault picks the reason for a lookup error that is not ErrNotFound.
func storeFault(err error) taxonomy.Reason {
	if errors.Is(err, errLookupPanic) {
		return taxonomy.ReasonServiceUnavailable
	}
	return taxonomy.ReasonStoreUnavailable
}

func (p *Pipeline) reject(step Step, reason taxonomy.Reason, cause error) error {
	f := fail(step, reason, cause)
	p.observe(step, f)
	return f
}

func (p *Pipeline) observe(step Step, err error) {
	if p.observer != nil {
		p.observer(step, err)
	}
}

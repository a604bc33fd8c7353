package goSubmit

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.MaxRecipients != 100 || cfg.Session.HistoryLimit != 32 {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Session.IdleTimeout != 5*time.Minute || cfg.Session.ReaperInterval != time.Minute {
		t.Fatalf("unexpected idle defaults %+v", cfg.Session)
	}
	if len(cfg.Auth.RequiredScopes) != 1 || cfg.Auth.RequiredScopes[0] != "smtp" || !cfg.Auth.RequireAuth {
		t.Fatalf("unexpected auth defaults %+v", cfg.Auth)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "zero max recipients",
			mutate: func(c *Config) {
				c.Session.MaxRecipients = 0
			},
			wantValid: false,
		},
		{
			name: "zero history limit",
			mutate: func(c *Config) {
				c.Session.HistoryLimit = 0
			},
			wantValid: false,
		},
		{
			name: "reaper interval longer than idle timeout",
			mutate: func(c *Config) {
				c.Session.ReaperInterval = 10 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "store ttl shorter than idle timeout",
			mutate: func(c *Config) {
				c.Session.StoreTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "store ttl disabled",
			mutate: func(c *Config) {
				c.Session.StoreTTL = 0
			},
			wantValid: true,
		},
		{
			name: "no required scopes",
			mutate: func(c *Config) {
				c.Auth.RequiredScopes = nil
			},
			wantValid: false,
		},
		{
			name: "blank known scope",
			mutate: func(c *Config) {
				c.Auth.KnownScopes = []string{"send", "  "}
			},
			wantValid: false,
		},
		{
			name: "scope aliases",
			mutate: func(c *Config) {
				c.Auth.RequiredScopes = []string{"smtp", "send"}
			},
			wantValid: true,
		},
		{
			name: "zero lookup timeout",
			mutate: func(c *Config) {
				c.Auth.LookupTimeout = 0
			},
			wantValid: false,
		},
		{
			name: "rate limit without budget",
			mutate: func(c *Config) {
				c.Security.MaxAuthFailures = 0
			},
			wantValid: false,
		},
		{
			name: "rate limit disabled ignores budget",
			mutate: func(c *Config) {
				c.Security.EnableAuthRateLimit = false
				c.Security.MaxAuthFailures = 0
			},
			wantValid: true,
		},
		{
			name: "zero submission timeout",
			mutate: func(c *Config) {
				c.Submission.Timeout = 0
			},
			wantValid: false,
		},
		{
			name: "negative message limit",
			mutate: func(c *Config) {
				c.Submission.MaxMessageBytes = -1
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "redis prefix with glob",
			mutate: func(c *Config) {
				c.Redis.Prefix = "gs*"
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestCloneConfigCopiesScopeSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.KnownScopes = []string{"send"}
	clone := cloneConfig(cfg)

	clone.Auth.RequiredScopes[0] = "mutated"
	clone.Auth.KnownScopes[0] = "mutated"
	if cfg.Auth.RequiredScopes[0] != "smtp" || cfg.Auth.KnownScopes[0] != "send" {
		t.Fatalf("clone shares slices with source")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.MaxRecipients = -1

	_, err := New().WithConfig(cfg).WithCredentialStore(unavailableLookup{}).Build()
	if err == nil {
		t.Fatalf("expected build to fail")
	}
}

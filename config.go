package goSubmit

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSubmit/auth"
	"github.com/MrEthical07/goSubmit/session"
)

// Config holds every engine setting. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates the result.
type Config struct {
	Session    SessionConfig
	Auth       AuthConfig
	Security   SecurityConfig
	Submission SubmissionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Redis      RedisConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds per-session state and idle handling.
type SessionConfig struct {
	MaxRecipients  int
	HistoryLimit   int
	IdleTimeout    time.Duration
	ReaperInterval time.Duration
	// StoreTTL caps how long an abandoned Redis blob survives if the reaper
	// never sees it. Zero disables the cap.
	StoreTTL time.Duration
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig controls the credential pipeline.
type AuthConfig struct {
	// RequiredScopes lists scopes of which a credential must hold at least
	// one. Aliases such as "smtp" and "send" can be listed together.
	RequiredScopes []string
	KnownScopes    []string
	LookupTimeout  time.Duration
	// RequireAuth rejects MAIL FROM before a successful AUTH.
	RequireAuth bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls the failed-AUTH limiter. It only takes effect
// when the Builder has a Redis client.
type SecurityConfig struct {
	EnableAuthRateLimit bool
	EnableIPThrottle    bool
	MaxAuthFailures     int
	AuthFailureWindow   time.Duration
}

/*
====================================
SUBMISSION CONFIG
====================================
*/

// SubmissionConfig bounds the downstream hand-off.
type SubmissionConfig struct {
	Timeout         time.Duration
	MaxMessageBytes int64
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the diagnostic-record dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the AUTH latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig sets the key namespace shared by the session store, the
// credential store and the limiter.
type RedisConfig struct {
	Prefix string
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			MaxRecipients:  session.DefaultMaxRecipients,
			HistoryLimit:   session.DefaultHistoryLimit,
			IdleTimeout:    session.DefaultIdleTimeout,
			ReaperInterval: session.DefaultReaperInterval,
			StoreTTL:       24 * time.Hour,
		},
		Auth: AuthConfig{
			RequiredScopes: []string{auth.DefaultScope},
			LookupTimeout:  5 * time.Second,
			RequireAuth:    true,
		},
		Security: SecurityConfig{
			EnableAuthRateLimit: true,
			EnableIPThrottle:    false,
			MaxAuthFailures:     5,
			AuthFailureWindow:   15 * time.Minute,
		},
		Submission: SubmissionConfig{
			Timeout:         30 * time.Second,
			MaxMessageBytes: 25 << 20,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Redis: RedisConfig{
			Prefix: "gs",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Auth.RequiredScopes = cloneStrings(cfg.Auth.RequiredScopes)
	out.Auth.KnownScopes = cloneStrings(cfg.Auth.KnownScopes)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.MaxRecipients <= 0 {
		return errors.New("Session MaxRecipients must be > 0")
	}
	if c.Session.HistoryLimit <= 0 {
		return errors.New("Session HistoryLimit must be > 0")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.ReaperInterval <= 0 {
		return errors.New("Session ReaperInterval must be > 0")
	}
	if c.Session.ReaperInterval > c.Session.IdleTimeout {
		return errors.New("Session ReaperInterval must not exceed IdleTimeout")
	}
	if c.Session.StoreTTL < 0 {
		return errors.New("Session StoreTTL must be >= 0")
	}
	if c.Session.StoreTTL > 0 && c.Session.StoreTTL < c.Session.IdleTimeout {
		return errors.New("Session StoreTTL must be 0 or >= IdleTimeout")
	}

	// Auth
	if len(c.Auth.RequiredScopes) == 0 {
		return errors.New("Auth RequiredScopes must not be empty")
	}
	for _, s := range append(append([]string{}, c.Auth.RequiredScopes...), c.Auth.KnownScopes...) {
		if strings.TrimSpace(s) == "" {
			return errors.New("Auth scope names must not be blank")
		}
	}
	if c.Auth.LookupTimeout <= 0 {
		return errors.New("Auth LookupTimeout must be > 0")
	}

	// Security
	if c.Security.EnableAuthRateLimit {
		if c.Security.MaxAuthFailures <= 0 {
			return errors.New("Security MaxAuthFailures must be > 0")
		}
		if c.Security.AuthFailureWindow <= 0 {
			return errors.New("Security AuthFailureWindow must be > 0")
		}
	}

	// Submission
	if c.Submission.Timeout <= 0 {
		return errors.New("Submission Timeout must be > 0")
	}
	if c.Submission.MaxMessageBytes < 0 {
		return errors.New("Submission MaxMessageBytes must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Redis
	if strings.ContainsAny(c.Redis.Prefix, " \t\r\n*?[]") {
		return errors.New("Redis Prefix must not contain whitespace or glob characters")
	}

	return nil
}

package goSubmit

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSubmit/auth"
	"github.com/MrEthical07/goSubmit/credential"
	"github.com/MrEthical07/goSubmit/internal/audit"
	"github.com/MrEthical07/goSubmit/internal/rate"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/submit"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it during initialisation and
// call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials credential.Lookup
	submitter   submit.Submitter
	sessions    session.Store
	diagSink    DiagnosticSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis session store, the Redis credential store
// (unless WithCredentialStore is also given) and the AUTH failure limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the collaborator used by the authentication
// pipeline.
func (b *Builder) WithCredentialStore(lookup credential.Lookup) *Builder {
	b.credentials = lookup
	return b
}

// WithSubmitter sets the downstream submission collaborator. Without one
// the Engine queues messages in memory.
func (b *Builder) WithSubmitter(s submit.Submitter) *Builder {
	b.submitter = s
	return b
}

// WithSessionStore overrides the session store chosen from the Redis
// setting.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessions = s
	return b
}

func (b *Builder) WithDiagnosticSink(sink DiagnosticSink) *Builder {
	b.diagSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the clock used for session timestamps, credential
// expiry and the reaper cutoff.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. The reaper is
// created but not started; call [Engine.StartReaper].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- CREDENTIAL STORE --------
	lookup := b.credentials
	if lookup == nil && b.redis != nil {
		hasher, err := credential.NewHasher(credential.DefaultHasherConfig())
		if err != nil {
			return nil, err
		}
		lookup = credential.NewRedisStore(b.redis, cfg.Redis.Prefix, hasher)
	}
	if lookup == nil {
		return nil, ErrCredentialStoreRequired
	}

	pipeline, err := auth.New(lookup, auth.Config{
		RequiredScopes: cfg.Auth.RequiredScopes,
		KnownScopes:    cfg.Auth.KnownScopes,
		LookupTimeout:  cfg.Auth.LookupTimeout,
	},
		auth.WithClock(now),
		auth.WithObserver(func(step auth.Step, err error) {
			if err != nil {
				logger.Debug("auth step failed", "step", step.String(), "error", err.Error())
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	sessions := b.sessions
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedisStore(b.redis, cfg.Redis.Prefix, cfg.Session.StoreTTL)
		} else {
			sessions = session.NewMemoryStore()
		}
	}

	engine := &Engine{
		config: cfg,
		machine: session.Machine{
			MaxRecipients: cfg.Session.MaxRecipients,
			HistoryLimit:  cfg.Session.HistoryLimit,
			RequireAuth:   cfg.Auth.RequireAuth,
		},
		sessions: sessions,
		pipeline: pipeline,
		logger:   logger,
		now:      now,
		vault:    newSecretVault(),
		metrics:  NewMetrics(cfg.Metrics),
	}

	// -------- LIMITER --------
	if b.redis != nil && cfg.Security.EnableAuthRateLimit {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Redis.Prefix,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxAuthFailures:  cfg.Security.MaxAuthFailures,
			Window:           cfg.Security.AuthFailureWindow,
		})
	}

	engine.submitter = b.submitter
	if engine.submitter == nil {
		engine.submitter = submit.NewMemoryQueue(0)
	}

	sink := b.diagSink
	if sink == nil {
		sink = NewSlogDiagnosticSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- REAPER --------
	engine.reaper = session.NewReaper(sessions, cfg.Session.IdleTimeout, cfg.Session.ReaperInterval,
		session.WithReaperClock(now),
		session.WithReaperLogger(logger),
		session.WithEvictHook(engine.onEvict),
	)

	b.built = true
	return engine, nil
}

func (e *Engine) onEvict(ctx context.Context, id string) {
	e.vault.drop(id)
	e.metricInc(MetricSessionReaped)
	e.emitDiagnostic(ctx, DiagnosticRecord{
		Timestamp: e.now().UTC(),
		EventType: diagSessionReaped,
		SessionID: id,
		Success:   true,
		Detail:    "idle timeout",
	})
}

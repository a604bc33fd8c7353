package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix           string
	EnableIPThrottle bool
	MaxAuthFailures  int
	Window           time.Duration
}

// Limiter counts failed AUTH attempts per principal and, optionally, per
// remote IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// failureScript increments a fixed-window counter and arms its expiry on
// the first hit, in one round trip so a counter never outlives its window.
var failureScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (l *Limiter) principalKey(principal string) string {
	return l.config.Prefix + ":af:" + strings.ToLower(principal)
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":afi:" + ip
}

// CheckAuth reports whether another attempt is allowed for the
// principal+IP pair. It does not consume budget.
func (l *Limiter) CheckAuth(ctx context.Context, principal, ip string) error {
	keys := l.keys(principal, ip)
	if len(keys) == 0 {
		return nil
	}

	// Pipelined GETs rather than MGET: the keys may live in different
	// cluster slots.
	cmds := make([]*redis.StringCmd, len(keys))
	if _, err := l.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.Get(ctx, key)
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, cmd := range cmds {
		count, err := cmd.Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAuthFailures) {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure consumes one unit of budget for the principal+IP pair.
// It returns ErrRateLimited once either counter reaches the maximum.
func (l *Limiter) RecordFailure(ctx context.Context, principal, ip string) error {
	limited := false
	for _, key := range l.keys(principal, ip) {
		count, err := failureScript.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAuthFailures) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetAuth clears the failure counters after a successful AUTH.
func (l *Limiter) ResetAuth(ctx context.Context, principal, ip string) error {
	keys := l.keys(principal, ip)
	if len(keys) == 0 {
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current counter for a principal. Missing keys
// return zero.
func (l *Limiter) Failures(ctx context.Context, principal string) (int, error) {
	count, err := l.redis.Get(ctx, l.principalKey(principal)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// RetryAfter returns how long until the principal's window expires. Zero
// means no failures are on record.
func (l *Limiter) RetryAfter(ctx context.Context, principal string) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, l.principalKey(principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// keys returns the counters that apply to an attempt.
func (l *Limiter) keys(principal, ip string) []string {
	keys := make([]string, 0, 2)
	if principal != "" {
		keys = append(keys, l.principalKey(principal))
	}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

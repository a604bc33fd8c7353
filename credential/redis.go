package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type storedCredential struct {
	Credential
	SecretHash string `json:"secret_hash,omitempty"`
}

// RedisStore is a Lookup backed by Redis. Credentials are keyed by Fingerprint(secret);
// when a Hasher is configured every record also carries an argon2id hash that must
// verify before the record is returned.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	hasher *Hasher
}

// NewRedisStore returns a store using keys under prefix. hasher may be nil, in which
// case records are stored and matched by fingerprint alone.
func NewRedisStore(client redis.UniversalClient, prefix string, hasher *Hasher) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix, hasher: hasher}
}

func (s *RedisStore) credentialKey(fp string) string { return s.prefix + ":cred:" + fp }
func (s *RedisStore) credentialIDKey(id string) string { return s.prefix + ":credid:" + id }
func (s *RedisStore) principalKey(id string) string { return s.prefix + ":prin:" + id }
func (s *RedisStore) addressKey(addr string) string {
	return s.prefix + ":addr:" + strings.ToLower(addr)
}

// PutCredential stores c under secret. It fails with ErrDuplicate when the secret or the
// credential id is already present.
func (s *RedisStore) PutCredential(ctx context.Context, secret string, c *Credential) error {
	rec := storedCredential{Credential: *c.Clone()}
	if s.hasher != nil {
		hash, err := s.hasher.Hash(secret)
		if err != nil {
			return err
		}
		rec.SecretHash = hash
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	fp := Fingerprint(secret)
	ok, err := s.redis.SetNX(ctx, s.credentialIDKey(c.ID), fp, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrDuplicate
	}
	ok, err = s.redis.SetNX(ctx, s.credentialKey(fp), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		_ = s.redis.Del(ctx, s.credentialIDKey(c.ID)).Err()
		return ErrDuplicate
	}
	return nil
}

// RevokeCredential stamps the revocation time on the credential with the given id.
func (s *RedisStore) RevokeCredential(ctx context.Context, id string, at time.Time) error {
	fp, err := s.redis.Get(ctx, s.credentialIDKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	rec, _, err := s.loadCredential(ctx, fp)
	if err != nil {
		return err
	}
	revoked := at.UTC()
	rec.RevokedAt = &revoked
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.credentialKey(fp), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PutPrincipal stores or replaces p together with its address index.
func (s *RedisStore) PutPrincipal(ctx context.Context, p *Principal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.principalKey(p.ID), data, 0)
		if p.Address != "" {
			pipe.Set(ctx, s.addressKey(p.Address), p.ID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) LookupCredential(ctx context.Context, secret string) (*Credential, error) {
	rec, raw, err := s.loadCredential(ctx, Fingerprint(secret))
	if err != nil {
		return nil, err
	}
	if s.hasher != nil && rec.SecretHash != "" {
		ok, err := s.hasher.Verify(secret, rec.SecretHash)
		if err != nil {
			return nil, fmt.Errorf("%w: stored hash unreadable: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, ErrNotFound
		}
		s.upgradeHash(ctx, secret, rec, raw)
	}
	out := rec.Credential
	return &out, nil
}

// KEYS: credential record. ARGV: record as read, replacement.
const swapCredentialScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2])
  return 1
end
return 0
`

var swapCredentialLua = redis.NewScript(swapCredentialScript)

// upgradeHash rewrites the stored hash with the current parameters once a
// secret has verified against an older one. The swap only applies if the
// record is unchanged since it was read, so a concurrent revocation wins.
// Failures leave the old hash in place; it still verifies.
func (s *RedisStore) upgradeHash(ctx context.Context, secret string, rec *storedCredential, raw []byte) {
	need, err := s.hasher.NeedsRehash(rec.SecretHash)
	if err != nil || !need {
		return
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return
	}
	next := *rec
	next.SecretHash = hash
	data, err := json.Marshal(next)
	if err != nil {
		return
	}
	_ = swapCredentialLua.Run(ctx, s.redis, []string{s.credentialKey(Fingerprint(secret))}, raw, data).Err()
}

func (s *RedisStore) LookupPrincipal(ctx context.Context, identifier string) (*Principal, error) {
	id := identifier
	if IsAddress(identifier) {
		resolved, err := s.redis.Get(ctx, s.addressKey(identifier)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		id = resolved
	}

	data, err := s.redis.Get(ctx, s.principalKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: corrupt principal record: %v", ErrStoreUnavailable, err)
	}
	return &p, nil
}

func (s *RedisStore) loadCredential(ctx context.Context, fp string) (*storedCredential, []byte, error) {
	data, err := s.redis.Get(ctx, s.credentialKey(fp)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var rec storedCredential
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: corrupt credential record: %v", ErrStoreUnavailable, err)
	}
	return &rec, data, nil
}

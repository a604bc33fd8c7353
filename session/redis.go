package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	writeModeCreate = "create"
	writeModeUpdate = "update"

	writeStatusConflict int64 = 0
	writeStatusWritten  int64 = 1
)

// KEYS: blob, activity zset, state hash.
// ARGV: payload, activity score, state, ttl ms, id, mode.
const writeSessionScript = `
local exists = redis.call("EXISTS", KEYS[1])
if ARGV[6] == "create" and exists == 1 then
  return 0
end
if ARGV[6] == "update" and exists == 0 then
  return 0
end
if tonumber(ARGV[4]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[5])
redis.call("HSET", KEYS[3], ARGV[5], ARGV[3])
return 1
`

var writeSessionLua = redis.NewScript(writeSessionScript)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// ARGV: id, cutoff ms. A member without a score has no index entry left to
// compare, so only the blob and state entry are cleared.
const deleteIdleSessionScript = `
local score = redis.call("ZSCORE", KEYS[2], ARGV[1])
if score and tonumber(score) >= tonumber(ARGV[2]) then
  return 0
end
local existed = redis.call("DEL", KEYS[1])
local indexed = redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
if existed + indexed > 0 then
  return 1
end
return 0
`

var deleteIdleSessionLua = redis.NewScript(deleteIdleSessionScript)

// RedisStore is a Redis-backed [Store]. Each session is one binary blob plus
// an entry in an activity sorted set (for idle scans) and a state hash (for
// per-state counts). All three are written by one Lua script so they never
// drift.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store under the given key prefix. ttl bounds how
// long an abandoned blob may linger if the reaper never sees it; zero
// disables expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":sess:" + id
}

func (s *RedisStore) activityKey() string {
	return s.prefix + ":sess-activity"
}

func (s *RedisStore) stateKey() string {
	return s.prefix + ":sess-state"
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess, writeModeCreate)
}

func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess, writeModeUpdate)
}

func (s *RedisStore) write(ctx context.Context, sess *Session, mode string) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	status, err := writeSessionLua.Run(ctx, s.redis,
		[]string{s.key(sess.ID), s.activityKey(), s.stateKey()},
		data,
		sess.LastActivity.UnixMilli(),
		strconv.Itoa(int(sess.State)),
		s.ttl.Milliseconds(),
		sess.ID,
		mode,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if status == writeStatusConflict {
		if mode == writeModeCreate {
			return ErrExists
		}
		return ErrNotFound
	}
	return nil
}

// Get loads and decodes one session.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

// Delete removes the blob and both index entries. Deleting a missing
// session is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.activityKey(), s.stateKey()},
		id,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteIfIdle compares the activity score with cutoff and deletes inside
// one script, so a write that lands after FindExpired keeps the session.
func (s *RedisStore) DeleteIfIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	n, err := deleteIdleSessionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.activityKey(), s.stateKey()},
		id,
		cutoff.UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// FindExpired reads the activity index. IDs whose blob already expired
// through the TTL are included so the caller's Delete cleans the indexes.
func (s *RedisStore) FindExpired(ctx context.Context, idle time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-idle).UnixMilli()
	ids, err := s.redis.ZRangeByScore(ctx, s.activityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// CountByState aggregates the state hash.
//
//	Performance: 1 HVALS, O(n) in live sessions.
func (s *RedisStore) CountByState(ctx context.Context) (map[State]int, error) {
	vals, err := s.redis.HVals(ctx, s.stateKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make(map[State]int)
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil || !State(n).Valid() {
			continue
		}
		out[State(n)]++
	}
	return out, nil
}

// Clear removes every session under the prefix. It scans, so it is meant
// for shutdown and tests, not request paths.
func (s *RedisStore) Clear(ctx context.Context) error {
	pattern := s.prefix + ":sess:*"
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := s.redis.Del(ctx, s.activityKey(), s.stateKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

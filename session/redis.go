package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lifeplan-navigator/authcore/token"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by RedisStore.
const DefaultPrefix = "lifeplan:"

const (
	fieldData         = "data"
	fieldUserID       = "user_id"
	fieldLastActivity = "last_activity"
	fieldExpiresAt    = "expires_at"
	fieldMFAVerified  = "mfa_verified"
)

const (
	touchStatusMissing int64 = 0
	touchStatusOK      int64 = 1
	touchStatusIdle    int64 = -1
)

// KEYS[1] session, KEYS[2] index
// ARGV: sid, data, user_id, now_ms, expires_ms, mfa_verified, ttl_ms, index_ttl_ms, max, session_prefix
const createSessionScript = `
redis.call("HSET", KEYS[1], "data", ARGV[2], "user_id", ARGV[3], "last_activity", ARGV[4], "expires_at", ARGV[5], "mfa_verified", ARGV[6])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
local idx_ttl = redis.call("PTTL", KEYS[2])
if idx_ttl < tonumber(ARGV[8]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[8])
end

local members = redis.call("ZRANGE", KEYS[2], 0, -1)
local live = 0
for _, id in ipairs(members) do
  if redis.call("EXISTS", ARGV[10] .. id) == 0 then
    redis.call("ZREM", KEYS[2], id)
  else
    live = live + 1
  end
end

local evicted = {}
local max = tonumber(ARGV[9])
if max > 0 and live > max then
  local ordered = redis.call("ZRANGE", KEYS[2], 0, -1)
  for _, id in ipairs(ordered) do
    if live <= max then
      break
    end
    if id ~= ARGV[1] then
      redis.call("DEL", ARGV[10] .. id)
      redis.call("ZREM", KEYS[2], id)
      table.insert(evicted, id)
      live = live - 1
    end
  end
end
return evicted
`

var createSessionLua = redis.NewScript(createSessionScript)

// KEYS[1] session
// ARGV: sid, now_ms, idle_ms, index_prefix
const touchSessionScript = `
local v = redis.call("HMGET", KEYS[1], "last_activity", "expires_at", "user_id")
if not v[1] then
  return 0
end
local now = tonumber(ARGV[2])
local idle = tonumber(ARGV[3])
local expires = tonumber(v[2])
if (idle > 0 and now - tonumber(v[1]) >= idle) or now >= expires then
  redis.call("DEL", KEYS[1])
  if v[3] then
    redis.call("ZREM", ARGV[4] .. v[3], ARGV[1])
  end
  return -1
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[2])
local remaining = expires - now
if idle > 0 and idle < remaining then
  remaining = idle
end
redis.call("PEXPIRE", KEYS[1], remaining)
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// KEYS[1] session; ARGV: sid, index_prefix
const destroySessionScript = `
local uid = redis.call("HGET", KEYS[1], "user_id")
local existed = redis.call("DEL", KEYS[1])
if uid then
  redis.call("ZREM", ARGV[2] .. uid, ARGV[1])
end
return existed
`

var destroySessionLua = redis.NewScript(destroySessionScript)

// KEYS[1] index; ARGV: session_prefix
const destroyAllScript = `
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
local n = 0
for _, id in ipairs(ids) do
  n = n + redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return n
`

var destroyAllLua = redis.NewScript(destroyAllScript)

// KEYS[1] session; ARGV: flag
const setMFAVerifiedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "mfa_verified", ARGV[1])
return 1
`

var setMFAVerifiedLua = redis.NewScript(setMFAVerifiedScript)

// RedisStore persists sessions in Redis. The Lua scripts touch keys derived
// from the prefix inside the script, so all keys of one deployment must live
// on a single node (standalone, sentinel, or a cluster with a hash-tagged
// prefix such as "{lifeplan}:").
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	policy Policy
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultPrefix.
//
//	Performance: every mutating call is one EVALSHA round trip.
func NewRedisStore(rdb redis.UniversalClient, prefix string, policy Policy) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{
		redis:  rdb,
		prefix: prefix,
		policy: policy,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) sessionPrefix() string { return s.prefix + "session:" }

func (s *RedisStore) indexPrefix() string { return s.prefix + "user_sessions:" }

func (s *RedisStore) key(id string) string { return s.sessionPrefix() + id }

func (s *RedisStore) userKey(userID string) string { return s.indexPrefix() + userID }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, attrs Attrs) (*Session, []string, error) {
	if attrs.UserID == "" {
		return nil, nil, ErrInvalidAttrs
	}
	id, err := token.Generate()
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	sess := newSession(id, attrs, s.policy, now)

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, nil, err
	}

	ttl := s.policy.AbsoluteTimeout
	if s.policy.IdleTimeout > 0 && s.policy.IdleTimeout < ttl {
		ttl = s.policy.IdleTimeout
	}

	res, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.userKey(attrs.UserID)},
		id,
		data,
		attrs.UserID,
		now.UnixMilli(),
		sess.ExpiresAt.UnixMilli(),
		boolFlag(attrs.MFAVerified),
		ttl.Milliseconds(),
		s.policy.AbsoluteTimeout.Milliseconds(),
		s.policy.MaxConcurrent,
		s.sessionPrefix(),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, unavailable(err)
	}

	return sess, res, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	sess, err := decodeHash(id, fields)
	if err != nil {
		return nil, err
	}

	if sess.Expired(s.now()) {
		if err := s.Destroy(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Touch implements Store.
func (s *RedisStore) Touch(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	status, err := touchSessionLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		id,
		s.now().UnixMilli(),
		s.policy.IdleTimeout.Milliseconds(),
		s.indexPrefix(),
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	switch status {
	case touchStatusOK:
		return true, nil
	case touchStatusIdle, touchStatusMissing:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unexpected touch status %d", ErrStoreUnavailable, status)
	}
}

// SetMFAVerified implements Store.
func (s *RedisStore) SetMFAVerified(ctx context.Context, id string, verified bool) (bool, error) {
	n, err := setMFAVerifiedLua.Run(ctx, s.redis, []string{s.key(id)}, boolFlag(verified)).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Destroy implements Store.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := destroySessionLua.Run(ctx, s.redis, []string{s.key(id)}, id, s.indexPrefix()).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DestroyAllForUser implements Store.
func (s *RedisStore) DestroyAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := destroyAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.sessionPrefix()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// ListForUser implements Store. Index entries whose session hash is gone
// are removed.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	now := s.now()
	out := make([]*Session, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeHash(ids[i], fields)
		if err != nil || sess.Expired(now) {
			continue
		}
		out = append(out, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, unavailable(err)
	}
	return time.Since(start), nil
}

func decodeHash(id string, fields map[string]string) (*Session, error) {
	raw, ok := fields[fieldData]
	if !ok {
		return nil, ErrCorrupt
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.ID = id

	last, err := strconv.ParseInt(fields[fieldLastActivity], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: last_activity", ErrCorrupt)
	}
	sess.LastActivity = time.UnixMilli(last)
	sess.MFAVerified = fields[fieldMFAVerified] == "1"
	return &sess, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

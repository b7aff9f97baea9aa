package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("session store unavailable")
)

const luaWriteBE64 = `
local function write_be64(n)
  local b = {}
  for i = 8, 1, -1 do
    b[i] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(b)
end
`

// revokeSessionLua flips the active byte, stamps the logout reason and
// timestamp, removes the session from the user's active index, and keeps
// the record alive under a retention TTL for audit. Idempotent: revoking
// an already-revoked session is a no-op.
//
// KEYS[1] session record, KEYS[2] user active-session index
// ARGV[1] session id, ARGV[2] reason byte, ARGV[3] logoutAt unix, ARGV[4] retention ms
var revokeSessionLua = redis.NewScript(luaWriteBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  redis.call("SREM", KEYS[2], ARGV[1])
  return 0
end
if string.byte(data, 1) ~= 1 then
  return -1
end
redis.call("SREM", KEYS[2], ARGV[1])
if string.byte(data, 2) == 0 then
  return 2
end
local patched = string.sub(data, 1, 1)
  .. string.char(0)
  .. string.char(tonumber(ARGV[2]))
  .. string.sub(data, 4, 27)
  .. write_be64(tonumber(ARGV[3]))
  .. string.sub(data, 36)
redis.call("SET", KEYS[1], patched, "PX", tonumber(ARGV[4]))
return 1
`)

// extendSessionLua reactivates a record for a repeat login from the same
// device: active flag set, logout fields cleared, activity and expiry
// advanced, record TTL renewed, id re-added to the user index.
//
// KEYS[1] session record, KEYS[2] user active-session index
// ARGV[1] session id, ARGV[2] lastActivityAt, ARGV[3] expiresAt, ARGV[4] ttl ms
var extendSessionLua = redis.NewScript(luaWriteBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 then
  return -1
end
local patched = string.sub(data, 1, 1)
  .. string.char(1)
  .. string.char(0)
  .. string.sub(data, 4, 11)
  .. write_be64(tonumber(ARGV[2]))
  .. write_be64(tonumber(ARGV[3]))
  .. write_be64(0)
  .. string.sub(data, 36)
redis.call("SET", KEYS[1], patched, "PX", tonumber(ARGV[4]))
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`)

// touchActivityLua advances lastActivityAt only, preserving the record
// TTL. Used on the validate hot path; absolute expiry is untouched.
//
// KEYS[1] session record
// ARGV[1] lastActivityAt unix
var touchActivityLua = redis.NewScript(luaWriteBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 then
  return -1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
local patched = string.sub(data, 1, 11)
  .. write_be64(tonumber(ARGV[1]))
  .. string.sub(data, 20)
redis.call("SET", KEYS[1], patched, "PX", ttl)
return 1
`)

// Store is the Redis-backed session registry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] with the given Redis key prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "qs"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *Store) deviceKey(userID string, deviceHash [32]byte) string {
	return s.prefix + "d:" + userID + ":" + hex.EncodeToString(deviceHash[:])
}

// Save persists a new session record, indexes it for the user, and maps
// the device fingerprint to the session id for reuse on repeat logins.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		pipe.Set(ctx, s.deviceKey(sess.UserID, sess.DeviceHash), sess.SessionID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get retrieves a session record by id. Revoked and expired records are
// returned as-is while retained; callers decide validity via [Session.Live].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	return sess, nil
}

// FindByDevice resolves the session id previously bound to a device
// fingerprint for this user.
func (s *Store) FindByDevice(ctx context.Context, userID string, deviceHash [32]byte) (string, error) {
	sessionID, err := s.redis.Get(ctx, s.deviceKey(userID, deviceHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sessionID, nil
}

// Extend reactivates and slides an existing record for a repeat login
// from the same device. The record keeps its creation timestamp; logout
// fields are cleared atomically inside Redis.
func (s *Store) Extend(
	ctx context.Context,
	userID, sessionID string,
	deviceHash [32]byte,
	lastActivityAt, expiresAt int64,
	ttl time.Duration,
) error {
	res, err := extendSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
		lastActivityAt,
		expiresAt,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch res {
	case 0:
		return ErrNotFound
	case -1:
		return ErrCorruptRecord
	}

	if err := s.redis.Set(ctx, s.deviceKey(userID, deviceHash), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Touch advances lastActivityAt without touching expiry or TTL.
func (s *Store) Touch(ctx context.Context, sessionID string, lastActivityAt int64) error {
	res, err := touchActivityLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		lastActivityAt,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res == -1 {
		return ErrCorruptRecord
	}
	return nil
}

// Revoke deactivates a session, recording the reason and logout time.
// The record is retained under the given retention TTL instead of being
// deleted. Returns false when no live session was revoked.
func (s *Store) Revoke(
	ctx context.Context,
	userID, sessionID string,
	reason Reason,
	logoutAt int64,
	retention time.Duration,
) (bool, error) {
	res, err := revokeSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
		int(reason),
		logoutAt,
		retention.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch res {
	case 1:
		return true, nil
	case -1:
		return false, ErrCorruptRecord
	default:
		return false, nil
	}
}

// RevokeAllForUser deactivates every indexed session for the user except
// exceptSessionID (pass "" to revoke all). Returns the revoked count.
//
// ATOMICITY NOTE: the index read and the per-session revocations are
// separate commands. A session created between the two phases survives
// the sweep; callers that need a hard guarantee must also revoke the
// user's refresh records, which gates new token issuance.
func (s *Store) RevokeAllForUser(
	ctx context.Context,
	userID, exceptSessionID string,
	reason Reason,
	logoutAt int64,
	retention time.Duration,
) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		ok, err := s.Revoke(ctx, userID, id, reason, logoutAt, retention)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}

	return revoked, nil
}

// ListActive returns the user's live sessions, pruning stale index
// entries it finds along the way.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().Unix()
	out := make([]*Session, 0, len(ids))
	var stale []interface{}

	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		if sess.Live(now) {
			out = append(out, sess)
		}
	}

	if len(stale) > 0 {
		// Best-effort index self-heal.
		_ = s.redis.SRem(ctx, s.userKey(userID), stale...).Err()
	}

	return out, nil
}

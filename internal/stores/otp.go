package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpRecordVersionV1 = 1

var (
	// ErrChallengeNotFound covers missing, expired, and already-consumed
	// challenges. Callers must not distinguish the three.
	ErrChallengeNotFound = errors.New("otp challenge not found or expired")
	// ErrCodeMismatch is a wrong code against a live challenge.
	ErrCodeMismatch = errors.New("otp code mismatch")
	// ErrAttemptsExceeded is returned once the attempt cap invalidates the
	// challenge. The record is deleted as a side effect.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrOTPUnavailable wraps Redis transport failures.
	ErrOTPUnavailable = errors.New("otp store unavailable")
)

// ChallengeRecord layout v1, fixed 53 bytes:
//
//	offset  size  field
//	0       1     version
//	1       1     challenge kind
//	2       1     verified flag
//	3       2     attempts (big-endian)
//	5       8     expiresAt (unix)
//	13      8     verifiedAt (unix)
//	21      32    code hash
type ChallengeRecord struct {
	Kind       uint8
	Verified   bool
	Attempts   uint16
	ExpiresAt  int64
	VerifiedAt int64
	CodeHash   [32]byte
}

// verifyChallengeLua runs the whole verification state machine in one
// atomic step: expiry check, attempt cap, attempt increment on mismatch,
// verified-flag transition on match. The record is kept after a match so
// two-phase flows (verify, then consume on reset) can re-check it inside
// the grace window.
//
// KEYS[1] challenge record
// ARGV[1] provided code hash (32 raw bytes)
// ARGV[2] max attempts
// ARGV[3] now (unix)
var verifyChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

local a0 = string.byte(data, 4)
local a1 = string.byte(data, 5)
local attempts = a0 * 256 + a1

local expiresAt = 0
for i = 6, 13 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end

local storedHash = string.sub(data, 22, 53)
if storedHash ~= ARGV[1] then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='not_found'}
  end
  local patched = string.sub(data, 1, 3)
    .. string.char(math.floor(attempts / 256), attempts % 256)
    .. string.sub(data, 6)
  redis.call('SET', KEYS[1], patched, 'PX', ttlMs)
  return {err='code_mismatch'}
end

local verifiedAt = nowUnix
local b = {}
for i = 8, 1, -1 do
  b[i] = string.char(verifiedAt % 256)
  verifiedAt = math.floor(verifiedAt / 256)
end

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
local patched = string.sub(data, 1, 2)
  .. string.char(1)
  .. string.sub(data, 4, 13)
  .. table.concat(b)
  .. string.sub(data, 22)
redis.call('SET', KEYS[1], patched, 'PX', ttlMs)
return patched
`)

// consumeChallengeLua deletes a previously verified challenge if it is
// still inside its grace window and the code matches. Consumption is
// single-use: a second call fails not_found.
//
// KEYS[1] challenge record
// ARGV[1] provided code hash
// ARGV[2] grace window (seconds)
// ARGV[3] now (unix)
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
if string.byte(data, 3) ~= 1 then
  return {err='not_found'}
end

local grace = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

local verifiedAt = 0
for i = 14, 21 do
  verifiedAt = verifiedAt * 256 + string.byte(data, i)
end

if verifiedAt + grace < nowUnix then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local storedHash = string.sub(data, 22, 53)
if storedHash ~= ARGV[1] then
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// OTPStore manages one-time-code challenges keyed by (identifier, kind).
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOTPStore creates an [OTPStore] with the given key prefix.
func NewOTPStore(client redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "qo"
	}
	return &OTPStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *OTPStore) key(kind uint8, identifier string) string {
	return s.prefix + ":" + strconv.Itoa(int(kind)) + ":" + identifier
}

// Replace inserts a fresh challenge, discarding any prior challenge for
// the same (identifier, kind) pair. At most one live challenge exists
// per pair; last writer wins.
func (s *OTPStore) Replace(
	ctx context.Context,
	identifier string,
	rec *ChallengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.Kind, identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return nil
}

// Verify checks a code against the live challenge for (identifier,
// kind). On match the record is marked verified and retained; on
// mismatch the attempt counter advances; at the cap the record is
// deleted permanently.
func (s *OTPStore) Verify(
	ctx context.Context,
	identifier string,
	kind uint8,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	result, err := verifyChallengeLua.Run(ctx, s.redis,
		[]string{s.key(kind, identifier)},
		string(providedHash[:]),
		maxAttempts,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, mapChallengeScriptErr(err)
	}

	return decodeChallengeResult(result, providedHash)
}

// Consume re-checks a verified challenge inside the grace window and
// deletes it. Single-use by construction.
func (s *OTPStore) Consume(
	ctx context.Context,
	identifier string,
	kind uint8,
	providedHash [32]byte,
	grace time.Duration,
) (*ChallengeRecord, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(kind, identifier)},
		string(providedHash[:]),
		int64(grace.Seconds()),
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, mapChallengeScriptErr(err)
	}

	return decodeChallengeResult(result, providedHash)
}

// Sweep deletes expired, unconsumed challenges. Expiry is otherwise
// enforced lazily at verify time; this is periodic garbage collection
// with per-key TTLs as the backstop.
func (s *OTPStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	nowUnix := now.Unix()

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", 128).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			rec, err := decodeChallengeRecord(data)
			if err != nil {
				_ = s.redis.Del(ctx, key).Err()
				removed++
				continue
			}
			if !rec.Verified && rec.ExpiresAt < nowUnix {
				if s.redis.Del(ctx, key).Val() > 0 {
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func mapChallengeScriptErr(err error) error {
	switch err.Error() {
	case "not_found":
		return ErrChallengeNotFound
	case "code_mismatch":
		return ErrCodeMismatch
	case "attempts_exceeded":
		return ErrAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
}

func decodeChallengeResult(result interface{}, providedHash [32]byte) (*ChallengeRecord, error) {
	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrOTPUnavailable)
	}

	rec, err := decodeChallengeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	// Lua string comparison is not constant-time; re-check in Go.
	if subtle.ConstantTimeCompare(rec.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return rec, nil
}

func encodeChallengeRecord(rec *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(53)

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(rec.Kind)
	verified := byte(0)
	if rec.Verified {
		verified = 1
	}
	buf.WriteByte(verified)

	if err := binary.Write(&buf, binary.BigEndian, rec.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.VerifiedAt); err != nil {
		return nil, err
	}
	buf.Write(rec.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	rec := &ChallengeRecord{}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	rec.Kind = kind

	verified, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	rec.Verified = verified == 1

	if err := binary.Read(reader, binary.BigEndian, &rec.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.VerifiedAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, rec.CodeHash[:]); err != nil {
		return nil, err
	}

	return rec, nil
}

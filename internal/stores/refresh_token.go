package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshRecordVersionV1 = 1

var (
	// ErrRefreshRevoked covers missing, mismatched, and expired refresh
	// records. The caller must treat all three identically.
	ErrRefreshRevoked = errors.New("refresh token invalid or revoked")
	// ErrRefreshUnavailable wraps Redis transport failures.
	ErrRefreshUnavailable = errors.New("refresh store unavailable")
)

// RefreshStore persists hashed refresh tokens scoped per (user, session).
// A second-device login creates its own record; it never disturbs the
// refresh capability of other devices. Re-issuing for the same session
// overwrites only that session's record, invalidating the prior token.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRefreshStore creates a [RefreshStore] with the given key prefix.
func NewRefreshStore(client redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "qr"
	}
	return &RefreshStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RefreshStore) key(userID, sessionID string) string {
	return s.prefix + ":" + userID + ":" + sessionID
}

func (s *RefreshStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save upserts the refresh record for (user, session), replacing any
// prior token for that session.
func (s *RefreshStore) Save(
	ctx context.Context,
	userID, sessionID string,
	tokenHash [32]byte,
	expiresAt int64,
	ttl time.Duration,
) error {
	encoded, err := encodeRefreshRecord(tokenHash, expiresAt)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(userID, sessionID), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	return nil
}

// Match validates a presented token hash against the stored record.
// Missing, expired, and mismatched records all fail [ErrRefreshRevoked].
func (s *RefreshStore) Match(ctx context.Context, userID, sessionID string, providedHash [32]byte) error {
	data, err := s.redis.Get(ctx, s.key(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrRefreshRevoked
		}
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	storedHash, expiresAt, err := decodeRefreshRecord(data)
	if err != nil {
		return ErrRefreshRevoked
	}
	if time.Now().Unix() > expiresAt {
		return ErrRefreshRevoked
	}
	if subtle.ConstantTimeCompare(storedHash[:], providedHash[:]) != 1 {
		return ErrRefreshRevoked
	}

	return nil
}

// Delete removes the refresh record for one session.
func (s *RefreshStore) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(userID, sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every refresh record for the user. Returns
// the number of records deleted.
func (s *RefreshStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	deleted := 0
	for _, sessionID := range sessionIDs {
		n, err := s.redis.Del(ctx, s.key(userID, sessionID)).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
		}
		deleted += int(n)
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	return deleted, nil
}

func encodeRefreshRecord(tokenHash [32]byte, expiresAt int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(41)

	buf.WriteByte(refreshRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, expiresAt); err != nil {
		return nil, err
	}
	buf.Write(tokenHash[:])

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) ([32]byte, int64, error) {
	var hash [32]byte

	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil || version != refreshRecordVersionV1 {
		return hash, 0, errors.New("invalid refresh record version")
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return hash, 0, err
	}
	if _, err := io.ReadFull(reader, hash[:]); err != nil {
		return hash, 0, err
	}

	return hash, expiresAt, nil
}

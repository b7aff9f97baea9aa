package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strconv"
)

// SessionID is a 16-byte opaque session identifier. It carries no
// embedded structure; all session state lives server-side.
type SessionID [16]byte

// NewSessionID returns a uniformly random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes a session identifier previously produced by
// [SessionID.String]. Rejects anything that is not exactly 16 raw bytes.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewNumericCode returns a uniformly random fixed-length numeric code for
// OTP delivery. Leading zeros are preserved; a 6-digit code is always six
// characters.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digit count")
	}

	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	code := n.Text(10)
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}

// HashSecret hashes an OTP code or device fingerprint for storage.
// Plaintext codes are never persisted.
func HashSecret(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}

// FormatUnix renders a unix timestamp for Lua script arguments.
func FormatUnix(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

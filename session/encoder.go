package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Record layout v1. The fixed header precedes all variable-length fields
// so Redis-side Lua scripts can patch mutable bytes at known offsets.
//
//	offset  size  field
//	0       1     version
//	1       1     active flag
//	2       1     logout reason
//	3       8     createdAt (unix, big-endian)
//	11      8     lastActivityAt
//	19      8     expiresAt
//	27      8     logoutAt
//	35      32    device fingerprint hash
//	67      ...   userID(u16+bytes) ip(u8+bytes) userAgent(u16+bytes) role(u8+bytes)
const (
	recordVersionV1 = 1

	fixedHeaderSize = 67
)

var (
	// ErrCorruptRecord is returned when a stored blob fails structural
	// validation.
	ErrCorruptRecord = errors.New("corrupt session record")
)

// Encode serializes a session into the v1 binary layout.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	if len(sess.UserID) > 65535 || len(sess.UserAgent) > 65535 {
		return nil, ErrCorruptRecord
	}
	if len(sess.IP) > 255 || len(sess.Role) > 255 {
		return nil, ErrCorruptRecord
	}

	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + len(sess.UserID) + len(sess.IP) + len(sess.UserAgent) + len(sess.Role) + 6)

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(boolByte(sess.Active))
	buf.WriteByte(byte(sess.LogoutReason))

	for _, ts := range []int64{sess.CreatedAt, sess.LastActivityAt, sess.ExpiresAt, sess.LogoutAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	buf.Write(sess.DeviceHash[:])

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(sess.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(sess.UserID)

	buf.WriteByte(byte(len(sess.IP)))
	buf.WriteString(sess.IP)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(sess.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(sess.UserAgent)

	buf.WriteByte(byte(len(sess.Role)))
	buf.WriteString(sess.Role)

	return buf.Bytes(), nil
}

// Decode parses a v1 record. The session id is not part of the blob; the
// store injects it from the key.
func Decode(data []byte) (*Session, error) {
	if len(data) < fixedHeaderSize {
		return nil, ErrCorruptRecord
	}

	reader := bytes.NewReader(data)

	version, _ := reader.ReadByte()
	if version != recordVersionV1 {
		return nil, ErrCorruptRecord
	}

	activeByte, _ := reader.ReadByte()
	reasonByte, _ := reader.ReadByte()

	sess := &Session{
		Active:       activeByte == 1,
		LogoutReason: Reason(reasonByte),
	}

	for _, dst := range []*int64{&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt, &sess.LogoutAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	if _, err := io.ReadFull(reader, sess.DeviceHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}

	var err error
	if sess.UserID, err = readString16(reader); err != nil {
		return nil, err
	}
	if sess.IP, err = readString8(reader); err != nil {
		return nil, err
	}
	if sess.UserAgent, err = readString16(reader); err != nil {
		return nil, err
	}
	if sess.Role, err = readString8(reader); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return sess, nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", ErrCorruptRecord
	}
	return readBytes(r, int(n))
}

func readString8(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrCorruptRecord
	}
	return readBytes(r, int(n))
}

func readBytes(r *bytes.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", ErrCorruptRecord
	}
	return string(out), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

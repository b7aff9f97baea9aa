package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/quickmeds/authcore/internal/audit"
	"github.com/quickmeds/authcore/internal/stores"
)

// ChallengeKind distinguishes the OTP flows. At most one live challenge
// exists per (identifier, kind) pair.
type ChallengeKind uint8

const (
	// KindEmailVerification gates registration completion.
	KindEmailVerification ChallengeKind = iota + 1
	// KindForgotPassword gates password reset.
	KindForgotPassword
	// KindPhoneVerification gates phone-number changes.
	KindPhoneVerification
)

func (k ChallengeKind) String() string {
	switch k {
	case KindEmailVerification:
		return "email_verification"
	case KindForgotPassword:
		return "forgot_password"
	case KindPhoneVerification:
		return "phone_verification"
	default:
		return "unknown"
	}
}

// UserRecord is the account record returned by [UserProvider]. The
// engine treats it as read-only; all writes go through provider methods.
type UserRecord struct {
	UserID       string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
	CreatedAt    int64
}

// CreateUserInput is passed to [UserProvider.CreateUser] during
// registration completion. PasswordHash is already argon2id-encoded.
type CreateUserInput struct {
	UserID       string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

// UserProvider is the interface the host implements over its user
// database. Lookup methods return [ErrUserNotFound] when no account
// matches; CreateUser returns [ErrDuplicateIdentity] on a unique
// constraint violation. UpdatePasswordHash is the one write the
// invalidation cascade depends on being transactional.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByPhone(ctx context.Context, phone string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	DeleteUser(ctx context.Context, userID string) error
}

// Notifier delivers one-time codes to the user. Responses to callers
// carry the expiry timestamp, never the code; the Notifier is the only
// component that ever sees plaintext codes.
type Notifier interface {
	SendCode(ctx context.Context, identifier string, kind ChallengeKind, code string, expiresAt time.Time) error
}

// RegistrationInput completes the second registration step. Identifier
// must match the one the code was requested for.
type RegistrationInput struct {
	Email     string
	Phone     string
	Password  string
	FirstName string
	LastName  string
	Code      string
}

// LoginResult is returned by Login, CompleteRegistration, and Refresh.
// RefreshToken is empty on Refresh, which issues a new access token only.
type LoginResult struct {
	UserID    string
	Email     string
	Role      string
	SessionID string

	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Principal is the authenticated identity returned by [Engine.Validate].
type Principal struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	Admin     bool
}

// SessionInfo is the caller-facing view of a session row. Revoked rows
// are retained for audit and carry LogoutAt and LogoutReason.
type SessionInfo struct {
	SessionID      string
	IP             string
	UserAgent      string
	CreatedAt      int64
	LastActivityAt int64
	ExpiresAt      int64
	Active         bool
	Current        bool
	LogoutAt       int64
	LogoutReason   string
}

// UserSnapshot is the cached read-model of an account used on profile
// lookups. The invalidation cascade deletes it alongside sessions.
type UserSnapshot = stores.Snapshot

// AuditEvent is one structured security event emitted to the host's
// [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's async dispatcher.
// Emit must not block indefinitely.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink exposes events on a buffered channel, dropping when full.
type ChannelSink = internalaudit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// JSONWriterSink writes events as JSON lines to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewJSONWriterSink returns a JSONWriterSink over w. Writes are
// serialized by the dispatcher goroutine.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

package authcore

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords. Login never distinguishes the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateIdentity is returned when registering an email or
	// phone that already belongs to an account.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrUserNotFound is the contract error providers return from
	// lookup methods when no account matches. The engine maps it to
	// ErrInvalidCredentials or silent success before it reaches callers.
	ErrUserNotFound = errors.New("user not found")
	// ErrOTPNotFoundOrExpired covers missing, expired, replayed, and
	// superseded challenges alike.
	ErrOTPNotFoundOrExpired = errors.New("otp challenge not found or expired")
	// ErrOTPInvalidCode is a wrong code against a live challenge.
	ErrOTPInvalidCode = errors.New("invalid otp code")
	// ErrOTPMaxAttemptsExceeded is returned once the attempt cap
	// permanently invalidates a challenge.
	ErrOTPMaxAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrSessionRequired is returned by Validate when a non-admin
	// access token carries no session binding.
	ErrSessionRequired = errors.New("session required")
	// ErrSessionInvalid covers revoked, expired, and unknown sessions.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrTokenExpired is the only rejection that may trigger the
	// client-side refresh coordinator.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other token rejection: bad
	// signature, wrong token class, malformed claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshTokenRevoked covers missing, mismatched, and expired
	// refresh records. Callers must not distinguish the three.
	ErrRefreshTokenRevoked = errors.New("refresh token invalid or revoked")
	// ErrNotifierFailure wraps delivery failures from the host Notifier.
	ErrNotifierFailure = errors.New("otp delivery failed")
	// ErrRateLimited is returned when a fixed-window limiter trips.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps Redis transport failures. Messages never
	// carry backend details.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegistrationRequest  = "registration_request"
	auditEventRegistrationComplete = "registration_complete"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLogoutSession        = "logout_session"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventOTPVerify            = "otp_verify"
	auditEventOTPResend            = "otp_resend"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventAccountDeleted       = "account_deleted"
	auditEventForcedLogout         = "forced_logout"
	auditEventSessionRevoke        = "session_revoke"
	auditEventSessionRevokeOthers  = "session_revoke_others"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventCascadeFailure       = "cascade_cleanup_failure"
)

const (
	auditErrInvalidCredentials = "invalid_credentials"
	auditErrDuplicate          = "duplicate_identity"
	auditErrOTPNotFound        = "otp_not_found"
	auditErrOTPInvalid         = "otp_invalid_code"
	auditErrOTPAttempts        = "otp_attempts_exceeded"
	auditErrSessionInvalid     = "session_invalid"
	auditErrTokenExpired       = "token_expired"
	auditErrTokenInvalid       = "token_invalid"
	auditErrRefreshRevoked     = "refresh_revoked"
	auditErrNotifier           = "notifier_failure"
	auditErrRateLimited        = "rate_limited"
	auditErrUnavailable        = "backend_unavailable"
	auditErrInternal           = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, subject string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, map[string]string{
		"scope":   scope,
		"subject": subject,
	})
}

// emitCascadeFailure records a best-effort cleanup step that failed
// after the transactional write already committed. These are never
// surfaced to the caller.
func (e *Engine) emitCascadeFailure(ctx context.Context, userID, step string, err error) {
	e.metricInc(MetricCascadeCleanupFailure)
	e.warnf("cascade cleanup step %s failed for %s: %v", step, userID, err)
	e.emitAudit(ctx, auditEventCascadeFailure, false, userID, "", err, map[string]string{
		"step": step,
	})
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrOTPNotFoundOrExpired):
		return auditErrOTPNotFound
	case errors.Is(err, ErrOTPInvalidCode):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPMaxAttemptsExceeded):
		return auditErrOTPAttempts
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrSessionRequired):
		return auditErrSessionInvalid
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrRefreshTokenRevoked):
		return auditErrRefreshRevoked
	case errors.Is(err, ErrNotifierFailure):
		return auditErrNotifier
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

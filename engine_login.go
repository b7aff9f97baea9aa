package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quickmeds/authcore/session"
)

// dummyHash is a well-formed argon2id record that matches no password.
// Verifying against it keeps the cost of the unknown-user path
// comparable to the known-user path.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$" +
	"MDEyMzQ1Njc4OWFiY2RlZg$eHh4eHh4eHh4eHh4eHh4eHh4eHh4eHh4eHh4eHh4eHg"

// Login authenticates an identifier/password pair and establishes a
// session. Unknown identifiers and wrong passwords both fail
// ErrInvalidCredentials. A repeat login from the same device inside the
// session TTL reuses and re-arms the existing session row.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || pass == "" {
		return nil, ErrInvalidCredentials
	}

	limiterSubject := identifier + "|" + clientIPFromContext(ctx)
	if err := e.checkLimiter(ctx, e.loginLimiter, limiterSubject); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitRateLimit(ctx, "login", identifier)
		return nil, err
	}

	user, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.hasher.Verify(pass, dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, mapStoreErr(err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if needs, err := e.hasher.NeedsRehash(user.PasswordHash); err == nil && needs {
			if newHash, err := e.hasher.Hash(pass); err == nil {
				if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
					e.warnf("password upgrade failed for %s: %v", user.UserID, err)
				}
			}
		}
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginSuccess, false, user.UserID, "", err, nil)
		return nil, err
	}

	if e.loginLimiter != nil {
		if err := e.loginLimiter.Reset(ctx, limiterSubject); err != nil {
			e.warnf("login limiter reset failed: %v", err)
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, result.SessionID, nil, nil)
	return result, nil
}

// Logout revokes one session and deletes its refresh record. The
// session row is retained in its revoked state for audit. Idempotent
// for already-revoked sessions; unknown sessions fail ErrSessionInvalid.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionInvalid
		}
		return mapStoreErr(err)
	}

	if err := e.revokeSessionAndRefresh(ctx, sess.UserID, sessionID, session.ReasonUserLogout); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.UserID, sessionID, nil, nil)
	return nil
}

// revokeSessionAndRefresh retires one (session, refresh record) pair.
// The refresh delete runs even when the session was already revoked.
func (e *Engine) revokeSessionAndRefresh(ctx context.Context, userID, sessionID string, reason session.Reason) error {
	revoked, err := e.sessionStore.Revoke(ctx, userID, sessionID, reason,
		time.Now().Unix(), e.config.Session.RetentionAfterLogout)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionInvalid
		}
		return mapStoreErr(err)
	}
	if revoked {
		e.metricInc(MetricSessionRevoked)
	}

	if err := e.refreshStore.Delete(ctx, userID, sessionID); err != nil {
		e.emitCascadeFailure(ctx, userID, "refresh_delete", err)
	}
	return nil
}

package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/quickmeds/authcore/internal"
	"github.com/quickmeds/authcore/internal/stores"
	"github.com/quickmeds/authcore/session"
)

// Refresh exchanges a live refresh token for a new access token. The
// token must verify under the refresh key, carry the refresh type
// marker, and match the stored hash for its (user, session) pair; the
// session itself must still be live. Refresh tokens are not rotated on
// use, so the result carries no new refresh token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		err = mapTokenErr(err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, err
	}
	if claims.SessionID == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	if err := e.checkLimiter(ctx, e.refreshLimiter, claims.UserID); err != nil {
		e.emitRateLimit(ctx, "refresh", claims.UserID)
		return nil, err
	}

	if err := e.refreshStore.Match(ctx, claims.UserID, claims.SessionID, internal.HashSecret(refreshToken)); err != nil {
		e.metricInc(MetricRefreshFailure)
		err = e.mapRefreshErr(err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.SessionID, err, nil)
		return nil, err
	}

	// The stored record is deleted on every revocation path, so a live
	// record with a revoked session means the cascade is mid-flight.
	// Reject rather than resurrect.
	sess, err := e.sessionStore.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshTokenRevoked
		}
		return nil, mapStoreErr(err)
	}
	now := time.Now().Unix()
	if sess.UserID != claims.UserID || !sess.Live(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.SessionID, ErrRefreshTokenRevoked, nil)
		return nil, ErrRefreshTokenRevoked
	}

	accessToken, accessExp, err := e.tokens.IssueAccess(claims.UserID, claims.Email, sess.Role, claims.SessionID)
	if err != nil {
		return nil, err
	}

	if err := e.sessionStore.Touch(ctx, claims.SessionID, now); err != nil {
		e.warnf("session touch failed for %s: %v", claims.SessionID, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UserID, claims.SessionID, nil, nil)
	return &LoginResult{
		UserID:          claims.UserID,
		Email:           claims.Email,
		Role:            sess.Role,
		SessionID:       claims.SessionID,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
	}, nil
}

func (e *Engine) mapRefreshErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrRefreshRevoked):
		return ErrRefreshTokenRevoked
	default:
		return mapStoreErr(err)
	}
}

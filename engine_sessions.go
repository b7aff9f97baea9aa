package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/quickmeds/authcore/session"
)

// ListSessions returns the user's live sessions. The row matching
// currentSessionID is flagged Current.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rows, err := e.sessionStore.ListActive(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	out := make([]SessionInfo, 0, len(rows))
	for _, s := range rows {
		out = append(out, SessionInfo{
			SessionID:      s.SessionID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			Active:         s.Active,
			Current:        s.SessionID == currentSessionID,
			LogoutAt:       s.LogoutAt,
			LogoutReason:   s.LogoutReason.String(),
		})
	}
	return out, nil
}

// RevokeSession revokes one of the caller's own sessions. Sessions
// belonging to another user fail ErrSessionInvalid, indistinguishable
// from unknown session ids.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
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
	if sess.UserID != userID {
		return ErrSessionInvalid
	}

	if err := e.revokeSessionAndRefresh(ctx, userID, sessionID, session.ReasonUserLogout); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventSessionRevoke, true, userID, sessionID, nil, nil)
	return nil
}

// RevokeOtherSessions revokes every session of the user except the
// current one, deleting each session's refresh record alongside it.
// Returns how many sessions were revoked.
func (e *Engine) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	rows, err := e.sessionStore.ListActive(ctx, userID)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	now := time.Now().Unix()
	revoked := 0
	for _, s := range rows {
		if s.SessionID == currentSessionID {
			continue
		}
		ok, err := e.sessionStore.Revoke(ctx, userID, s.SessionID,
			session.ReasonAllDevices, now, e.config.Session.RetentionAfterLogout)
		if err != nil {
			return revoked, mapStoreErr(err)
		}
		if ok {
			revoked++
			e.metricInc(MetricSessionRevoked)
		}
		if err := e.refreshStore.Delete(ctx, userID, s.SessionID); err != nil {
			e.emitCascadeFailure(ctx, userID, "refresh_delete", err)
		}
	}

	e.emitAudit(ctx, auditEventSessionRevokeOthers, true, userID, currentSessionID, nil, map[string]string{
		"revoked": strconv.Itoa(revoked),
	})
	return revoked, nil
}

package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/quickmeds/authcore/session"
)

// ResetPassword completes the forgot-password flow. The challenge must
// have been verified with VerifyOTP beforehand; ResetPassword consumes
// it inside the grace window, so a consumed code cannot be replayed.
// Once the credential write commits, every session and refresh record
// of the account is invalidated best-effort: cleanup failures are
// logged and audited, never returned.
func (e *Engine) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetRejected)
		return err
	}

	if err := e.consumeChallenge(ctx, identifier, KindForgotPassword, code); err != nil {
		e.metricInc(MetricPasswordResetRejected)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", err, nil)
		return err
	}

	user, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		// The challenge only existed because the account did; a miss
		// here means it was deleted mid-flow.
		e.metricInc(MetricPasswordResetRejected)
		if errors.Is(err, ErrUserNotFound) {
			return ErrOTPNotFoundOrExpired
		}
		return mapStoreErr(err)
	}

	// The one transactional step. Everything after is best-effort.
	if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		e.metricInc(MetricPasswordResetRejected)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.UserID, "", err, nil)
		return mapStoreErr(err)
	}

	e.runInvalidationCascade(ctx, user.UserID, session.ReasonPasswordReset)

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.UserID, "", nil, nil)
	return nil
}

// DeleteAccount removes the user row through the provider and then
// invalidates everything the engine holds for the account. The
// provider delete is the transactional step; the cascade after it is
// best-effort.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.userProvider.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return mapStoreErr(err)
	}

	e.runInvalidationCascade(ctx, userID, session.ReasonAccountDeleted)

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, userID, "", nil, nil)
	return nil
}

// ForceLogout invalidates every session and refresh record of an
// account, for admin tooling. Unlike the cascades it reports revocation
// failures, since the revocation is the operation itself.
func (e *Engine) ForceLogout(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.sessionStore.RevokeAllForUser(ctx, userID, "",
		session.ReasonAdminForced, time.Now().Unix(), e.config.Session.RetentionAfterLogout)
	if err != nil {
		return revoked, mapStoreErr(err)
	}
	if _, err := e.refreshStore.DeleteAllForUser(ctx, userID); err != nil {
		return revoked, mapStoreErr(err)
	}
	if e.snapshotCache != nil {
		if err := e.snapshotCache.Invalidate(ctx, userID); err != nil {
			e.emitCascadeFailure(ctx, userID, "snapshot_invalidate", err)
		}
	}

	e.metricInc(MetricForcedLogout)
	e.emitAudit(ctx, auditEventForcedLogout, true, userID, "", nil, map[string]string{
		"revoked": strconv.Itoa(revoked),
	})
	return revoked, nil
}

// runInvalidationCascade retires all engine-held state for a user after
// a committed credential write. Each step is independent; a failed step
// is logged and audited but never interrupts the rest.
func (e *Engine) runInvalidationCascade(ctx context.Context, userID string, reason session.Reason) {
	n, err := e.sessionStore.RevokeAllForUser(ctx, userID, "", reason,
		time.Now().Unix(), e.config.Session.RetentionAfterLogout)
	if err != nil {
		e.emitCascadeFailure(ctx, userID, "session_revoke_all", err)
	}
	if n > 0 {
		e.metricAdd(MetricSessionRevoked, uint64(n))
	}

	if _, err := e.refreshStore.DeleteAllForUser(ctx, userID); err != nil {
		e.emitCascadeFailure(ctx, userID, "refresh_delete_all", err)
	}

	if e.snapshotCache != nil {
		if err := e.snapshotCache.Invalidate(ctx, userID); err != nil {
			e.emitCascadeFailure(ctx, userID, "snapshot_invalidate", err)
		}
	}
}

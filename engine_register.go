package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickmeds/authcore/internal"
	"github.com/quickmeds/authcore/session"
)

// RequestRegistration starts the two-step signup: it sends a one-time
// code to the identifier and creates no user row. Identifiers that
// already belong to an account fail ErrDuplicateIdentity. Returns the
// challenge expiry; the code travels only through the Notifier.
func (e *Engine) RequestRegistration(ctx context.Context, identifier string) (time.Time, error) {
	if e == nil {
		return time.Time{}, ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return time.Time{}, ErrInvalidCredentials
	}
	if err := e.checkLimiter(ctx, e.otpLimiter, identifier); err != nil {
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "registration", identifier)
		return time.Time{}, err
	}

	if _, err := e.lookupByIdentifier(ctx, identifier); err == nil {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegistrationRequest, false, "", "", ErrDuplicateIdentity, nil)
		return time.Time{}, ErrDuplicateIdentity
	} else if !errors.Is(err, ErrUserNotFound) {
		return time.Time{}, mapStoreErr(err)
	}

	kind := KindEmailVerification
	if !strings.Contains(identifier, "@") {
		kind = KindPhoneVerification
	}
	expiresAt, err := e.createChallenge(ctx, identifier, kind)
	if err != nil {
		e.emitAudit(ctx, auditEventRegistrationRequest, false, "", "", err, nil)
		return time.Time{}, err
	}

	e.metricInc(MetricRegistrationRequested)
	e.emitAudit(ctx, auditEventRegistrationRequest, true, "", "", nil, nil)
	return expiresAt, nil
}

// CompleteRegistration finishes signup: it burns the challenge, creates
// the user through the provider, and logs the new account in (both
// tokens plus a session). The challenge code is accepted directly here;
// a prior VerifyOTP call is not required.
func (e *Engine) CompleteRegistration(ctx context.Context, input RegistrationInput) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	identifier := strings.TrimSpace(input.Email)
	kind := KindEmailVerification
	if identifier == "" {
		identifier = strings.TrimSpace(input.Phone)
		kind = KindPhoneVerification
	}
	if identifier == "" || input.Password == "" || input.Code == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		e.metricInc(MetricRegistrationRejected)
		return nil, err
	}

	// Verify then consume: the verify step accepts codes submitted
	// directly with the form, and re-verifying after a prior VerifyOTP
	// call succeeds against the retained record.
	if _, err := e.otpStore.Verify(ctx, identifier, uint8(kind), internal.HashSecret(input.Code), e.config.OTP.MaxAttempts); err != nil {
		err = e.mapChallengeErr(err)
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegistrationComplete, false, "", "", err, nil)
		return nil, err
	}
	if err := e.consumeChallenge(ctx, identifier, kind, input.Code); err != nil {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, auditEventRegistrationComplete, false, "", "", err, nil)
		return nil, err
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		UserID:       uuid.NewString(),
		Email:        strings.TrimSpace(input.Email),
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: hash,
		Role:         "customer",
		FirstName:    input.FirstName,
		LastName:     input.LastName,
	})
	if err != nil {
		e.metricInc(MetricRegistrationRejected)
		if errors.Is(err, ErrDuplicateIdentity) {
			e.emitAudit(ctx, auditEventRegistrationComplete, false, "", "", ErrDuplicateIdentity, nil)
			return nil, ErrDuplicateIdentity
		}
		e.emitAudit(ctx, auditEventRegistrationComplete, false, "", "", err, nil)
		return nil, mapStoreErr(err)
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		// The account exists; the caller can recover through Login.
		e.emitAudit(ctx, auditEventRegistrationComplete, false, user.UserID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationCompleted)
	e.emitAudit(ctx, auditEventRegistrationComplete, true, user.UserID, result.SessionID, nil, nil)
	return result, nil
}

// establishSession binds the login to a session row and mints both
// tokens. A live row for the same device is reused and re-armed; the
// refresh record for the session is overwritten either way.
func (e *Engine) establishSession(ctx context.Context, user UserRecord) (*LoginResult, error) {
	device := e.deviceHash(ctx)
	now := time.Now()
	expiresAt := now.Add(e.config.Session.Lifetime)

	var sessionID string
	reused := false
	if existing, err := e.sessionStore.FindByDevice(ctx, user.UserID, device); err == nil {
		err = e.sessionStore.Extend(ctx, user.UserID, existing, device,
			now.Unix(), expiresAt.Unix(), e.config.Session.Lifetime)
		if err == nil {
			sessionID = existing
			reused = true
		} else if !errors.Is(err, session.ErrNotFound) {
			return nil, mapStoreErr(err)
		}
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, mapStoreErr(err)
	}

	if sessionID == "" {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		sessionID = sid.String()
		sess := &session.Session{
			SessionID:      sessionID,
			UserID:         user.UserID,
			IP:             clientIPFromContext(ctx),
			UserAgent:      userAgentFromContext(ctx),
			Role:           user.Role,
			DeviceHash:     device,
			CreatedAt:      now.Unix(),
			LastActivityAt: now.Unix(),
			ExpiresAt:      expiresAt.Unix(),
			Active:         true,
		}
		if err := e.sessionStore.Save(ctx, sess, e.config.Session.Lifetime); err != nil {
			return nil, mapStoreErr(err)
		}
	}

	accessToken, accessExp, err := e.tokens.IssueAccess(user.UserID, user.Email, user.Role, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := e.tokens.IssueRefresh(user.UserID, user.Email, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.refreshStore.Save(ctx, user.UserID, sessionID,
		internal.HashSecret(refreshToken), refreshExp.Unix(), e.config.Token.RefreshTTL); err != nil {
		return nil, mapStoreErr(err)
	}

	if reused {
		e.metricInc(MetricSessionReused)
	} else {
		e.metricInc(MetricSessionCreated)
	}

	return &LoginResult{
		UserID:           user.UserID,
		Email:            user.Email,
		Role:             user.Role,
		SessionID:        sessionID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

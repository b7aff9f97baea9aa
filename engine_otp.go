package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickmeds/authcore/internal"
	"github.com/quickmeds/authcore/internal/stores"
)

// createChallenge mints a fresh code for (identifier, kind), replacing
// any live challenge for the pair, and hands the plaintext code to the
// Notifier. The record's key TTL covers both the verify window and the
// consume grace window; expiry for verification is the embedded
// timestamp. Returns the expiry shown to the caller.
func (e *Engine) createChallenge(ctx context.Context, identifier string, kind ChallengeKind) (time.Time, error) {
	code, err := internal.NewNumericCode(e.config.OTP.Digits)
	if err != nil {
		return time.Time{}, fmt.Errorf("code generation: %w", err)
	}

	expiresAt := time.Now().Add(e.config.OTP.TTL)
	rec := &stores.ChallengeRecord{
		Kind:      uint8(kind),
		ExpiresAt: expiresAt.Unix(),
		CodeHash:  internal.HashSecret(code),
	}
	keyTTL := e.config.OTP.TTL + e.config.OTP.GraceWindow
	if err := e.otpStore.Replace(ctx, identifier, rec, keyTTL); err != nil {
		return time.Time{}, mapStoreErr(err)
	}

	if err := e.notifier.SendCode(ctx, identifier, kind, code, expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNotifierFailure, err)
	}

	e.metricInc(MetricOTPIssued)
	return expiresAt, nil
}

// VerifyOTP checks a code against the live challenge for (identifier,
// kind). A match marks the challenge verified and keeps it consumable
// for the grace window; reaching the attempt cap invalidates it
// permanently.
func (e *Engine) VerifyOTP(ctx context.Context, identifier string, kind ChallengeKind, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, err := e.otpStore.Verify(ctx, identifier, uint8(kind), internal.HashSecret(code), e.config.OTP.MaxAttempts)
	if err != nil {
		err = e.mapChallengeErr(err)
		e.emitAudit(ctx, auditEventOTPVerify, false, "", "", err, otpMetadata(kind))
		return err
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditEventOTPVerify, true, "", "", nil, otpMetadata(kind))
	return nil
}

// consumeChallenge burns a previously verified challenge inside its
// grace window. Single-use: replays fail ErrOTPNotFoundOrExpired.
func (e *Engine) consumeChallenge(ctx context.Context, identifier string, kind ChallengeKind, code string) error {
	_, err := e.otpStore.Consume(ctx, identifier, uint8(kind), internal.HashSecret(code), e.config.OTP.GraceWindow)
	if err != nil {
		return e.mapChallengeErr(err)
	}
	return nil
}

// ResendOTP re-issues the code for (identifier, kind), replacing the
// prior challenge. For forgot-password it answers identically whether
// or not the identifier exists.
func (e *Engine) ResendOTP(ctx context.Context, identifier string, kind ChallengeKind) (time.Time, error) {
	if e == nil {
		return time.Time{}, ErrEngineNotReady
	}
	if err := e.checkLimiter(ctx, e.otpLimiter, identifier); err != nil {
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "otp_resend", identifier)
		return time.Time{}, err
	}

	if kind == KindForgotPassword {
		if _, err := e.lookupByIdentifier(ctx, identifier); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return time.Now().Add(e.config.OTP.TTL), nil
			}
			return time.Time{}, mapStoreErr(err)
		}
	}

	expiresAt, err := e.createChallenge(ctx, identifier, kind)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResend, false, "", "", err, otpMetadata(kind))
		return time.Time{}, err
	}
	e.emitAudit(ctx, auditEventOTPResend, true, "", "", nil, otpMetadata(kind))
	return expiresAt, nil
}

// ForgotPassword starts the reset flow. The response is identical for
// known and unknown identifiers; a challenge is only actually created
// for accounts that exist.
func (e *Engine) ForgotPassword(ctx context.Context, identifier string) (time.Time, error) {
	if e == nil {
		return time.Time{}, ErrEngineNotReady
	}
	if err := e.checkLimiter(ctx, e.otpLimiter, identifier); err != nil {
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "forgot_password", identifier)
		return time.Time{}, err
	}

	if _, err := e.lookupByIdentifier(ctx, identifier); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return time.Now().Add(e.config.OTP.TTL), nil
		}
		return time.Time{}, mapStoreErr(err)
	}

	expiresAt, err := e.createChallenge(ctx, identifier, KindForgotPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return time.Time{}, err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, nil)
	return expiresAt, nil
}

func (e *Engine) mapChallengeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrOTPNotFoundOrExpired
	case errors.Is(err, stores.ErrCodeMismatch):
		e.metricInc(MetricOTPInvalidCode)
		return ErrOTPInvalidCode
	case errors.Is(err, stores.ErrAttemptsExceeded):
		e.metricInc(MetricOTPAttemptsExceeded)
		return ErrOTPMaxAttemptsExceeded
	default:
		return mapStoreErr(err)
	}
}

func otpMetadata(kind ChallengeKind) map[string]string {
	return map[string]string{"kind": kind.String()}
}

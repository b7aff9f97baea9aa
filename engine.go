package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/quickmeds/authcore/internal"
	"github.com/quickmeds/authcore/internal/audit"
	"github.com/quickmeds/authcore/internal/limiters"
	"github.com/quickmeds/authcore/internal/metrics"
	"github.com/quickmeds/authcore/internal/stores"
	"github.com/quickmeds/authcore/password"
	"github.com/quickmeds/authcore/session"
	"github.com/quickmeds/authcore/token"
)

// Engine is the credential and session lifecycle core. Construct it
// with [Builder]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	userProvider UserProvider
	notifier     Notifier

	tokens        *token.Manager
	hasher        *password.Hasher
	sessionStore  *session.Store
	otpStore      *stores.OTPStore
	refreshStore  *stores.RefreshStore
	snapshotCache *stores.SnapshotCache

	loginLimiter   *limiters.FixedWindow
	otpLimiter     *limiters.FixedWindow
	refreshLimiter *limiters.FixedWindow

	audit   *audit.Dispatcher
	metrics *metrics.Metrics

	sweepDone chan struct{}
	sweepWG   sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the challenge sweeper and drains the audit dispatcher.
// Engine methods must not be called after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepDone != nil {
			close(e.sweepDone)
			e.sweepWG.Wait()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports how many audit events were shed because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.TakeSnapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, delta uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, delta)
}

// Validate checks an access token and, for non-admin principals, the
// session it is bound to. Valid sessions get their activity timestamp
// advanced. Admin tokens skip the registry entirely.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}

	p := &Principal{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if claims.Role == e.config.AdminRole {
		p.Admin = true
		return p, nil
	}

	if claims.SessionID == "" {
		return nil, ErrSessionRequired
	}
	sess, err := e.sessionStore.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, mapStoreErr(err)
	}
	now := time.Now().Unix()
	if sess.UserID != claims.UserID || !sess.Live(now) {
		return nil, ErrSessionInvalid
	}

	if err := e.sessionStore.Touch(ctx, claims.SessionID, now); err != nil {
		e.warnf("session touch failed for %s: %v", claims.SessionID, err)
	}
	return p, nil
}

// UserSnapshot returns the cached read-model of an account, falling
// back to the provider on a miss. The invalidation cascade clears it.
func (e *Engine) UserSnapshot(ctx context.Context, userID string) (*UserSnapshot, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if e.snapshotCache != nil {
		snap, err := e.snapshotCache.Get(ctx, userID)
		if err == nil {
			e.metricInc(MetricCacheHit)
			return snap, nil
		}
		if !errors.Is(err, stores.ErrSnapshotMiss) {
			e.warnf("snapshot cache read failed for %s: %v", userID, err)
		}
		e.metricInc(MetricCacheMiss)
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, mapStoreErr(err)
	}
	snap := &UserSnapshot{
		UserID:    user.UserID,
		Email:     user.Email,
		Phone:     user.Phone,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
	if e.snapshotCache != nil {
		if err := e.snapshotCache.Put(ctx, snap); err != nil {
			e.warnf("snapshot cache write failed for %s: %v", userID, err)
		}
	}
	return snap, nil
}

func (e *Engine) warnf(format string, args ...any) {
	log.Printf("authcore: "+format, args...)
}

// lookupByIdentifier routes emails and phone numbers to the matching
// provider method. Identifiers containing '@' are treated as emails.
func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	if strings.Contains(identifier, "@") {
		return e.userProvider.GetUserByEmail(ctx, identifier)
	}
	return e.userProvider.GetUserByPhone(ctx, identifier)
}

// deviceHash resolves the session device key: the client fingerprint
// when supplied, else a hash over user agent and IP.
func (e *Engine) deviceHash(ctx context.Context) [32]byte {
	if fp := deviceFingerprintFromContext(ctx); fp != "" {
		return internal.HashSecret(fp)
	}
	return internal.HashSecret(userAgentFromContext(ctx) + "\x00" + clientIPFromContext(ctx))
}

func (e *Engine) startSweeper() {
	if e.config.OTP.SweepInterval <= 0 {
		return
	}
	e.sweepDone = make(chan struct{})
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(e.config.OTP.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := e.otpStore.Sweep(context.Background(), time.Now())
				if err != nil {
					e.warnf("otp sweep failed: %v", err)
					continue
				}
				if n > 0 {
					e.metricAdd(MetricOTPSwept, uint64(n))
				}
			case <-e.sweepDone:
				return
			}
		}
	}()
}

func mapTokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// mapStoreErr folds every backend transport failure into
// ErrStoreUnavailable so Redis details never reach callers.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return ErrStoreUnavailable
}

func (e *Engine) checkLimiter(ctx context.Context, l *limiters.FixedWindow, subject string) error {
	if l == nil {
		return nil
	}
	err := l.Allow(ctx, subject)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRateLimited):
		return ErrRateLimited
	default:
		// Availability failures must not lock users out.
		e.warnf("rate limiter unavailable: %v", err)
		return nil
	}
}

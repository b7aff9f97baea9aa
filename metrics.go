package authcore

import "github.com/quickmeds/authcore/internal/metrics"

// MetricID identifies one engine counter.
type MetricID = metrics.MetricID

// Counter identifiers, re-exported for snapshot consumers and the OTel
// bridge under metrics/export.
const (
	MetricRegistrationRequested  = metrics.MetricRegistrationRequested
	MetricRegistrationCompleted  = metrics.MetricRegistrationCompleted
	MetricRegistrationRejected   = metrics.MetricRegistrationRejected
	MetricLoginSuccess           = metrics.MetricLoginSuccess
	MetricLoginFailure           = metrics.MetricLoginFailure
	MetricLoginRateLimited       = metrics.MetricLoginRateLimited
	MetricSessionCreated         = metrics.MetricSessionCreated
	MetricSessionReused          = metrics.MetricSessionReused
	MetricSessionRevoked         = metrics.MetricSessionRevoked
	MetricRefreshSuccess         = metrics.MetricRefreshSuccess
	MetricRefreshFailure         = metrics.MetricRefreshFailure
	MetricOTPIssued              = metrics.MetricOTPIssued
	MetricOTPVerified            = metrics.MetricOTPVerified
	MetricOTPInvalidCode         = metrics.MetricOTPInvalidCode
	MetricOTPAttemptsExceeded    = metrics.MetricOTPAttemptsExceeded
	MetricOTPSwept               = metrics.MetricOTPSwept
	MetricOTPRateLimited         = metrics.MetricOTPRateLimited
	MetricPasswordResetRequested = metrics.MetricPasswordResetRequested
	MetricPasswordResetCompleted = metrics.MetricPasswordResetCompleted
	MetricPasswordResetRejected  = metrics.MetricPasswordResetRejected
	MetricAccountDeleted         = metrics.MetricAccountDeleted
	MetricForcedLogout           = metrics.MetricForcedLogout
	MetricCascadeCleanupFailure  = metrics.MetricCascadeCleanupFailure
	MetricCacheHit               = metrics.MetricCacheHit
	MetricCacheMiss              = metrics.MetricCacheMiss
	MetricLogout                 = metrics.MetricLogout
)

// MetricsSnapshot is a point-in-time copy of every engine counter.
type MetricsSnapshot = metrics.Snapshot

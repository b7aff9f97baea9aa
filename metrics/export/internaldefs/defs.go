package internaldefs

import authcore "github.com/quickmeds/authcore"

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{authcore.MetricRegistrationRequested, "authcore_registration_requested_total", "Registration OTP requests."},
	{authcore.MetricRegistrationCompleted, "authcore_registration_completed_total", "Accounts created."},
	{authcore.MetricRegistrationRejected, "authcore_registration_rejected_total", "Registration completions rejected."},
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Rejected credential checks."},
	{authcore.MetricLoginRateLimited, "authcore_login_rate_limited_total", "Logins rejected by the limiter."},
	{authcore.MetricSessionCreated, "authcore_session_created_total", "New session rows."},
	{authcore.MetricSessionReused, "authcore_session_reused_total", "Same-device logins reusing a session row."},
	{authcore.MetricSessionRevoked, "authcore_session_revoked_total", "Sessions revoked, all reasons."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Access tokens minted via refresh."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Rejected refresh attempts."},
	{authcore.MetricOTPIssued, "authcore_otp_issued_total", "One-time codes delivered."},
	{authcore.MetricOTPVerified, "authcore_otp_verified_total", "Codes verified."},
	{authcore.MetricOTPInvalidCode, "authcore_otp_invalid_code_total", "Wrong-code attempts."},
	{authcore.MetricOTPAttemptsExceeded, "authcore_otp_attempts_exceeded_total", "Challenges invalidated at the attempt cap."},
	{authcore.MetricOTPSwept, "authcore_otp_swept_total", "Expired challenges removed by the sweeper."},
	{authcore.MetricOTPRateLimited, "authcore_otp_rate_limited_total", "Challenge requests rejected by the limiter."},
	{authcore.MetricPasswordResetRequested, "authcore_password_reset_requested_total", "Forgot-password requests for known accounts."},
	{authcore.MetricPasswordResetCompleted, "authcore_password_reset_completed_total", "Credential writes via reset."},
	{authcore.MetricPasswordResetRejected, "authcore_password_reset_rejected_total", "Rejected reset confirmations."},
	{authcore.MetricAccountDeleted, "authcore_account_deleted_total", "Accounts deleted."},
	{authcore.MetricForcedLogout, "authcore_forced_logout_total", "Admin-forced logouts."},
	{authcore.MetricCascadeCleanupFailure, "authcore_cascade_cleanup_failure_total", "Best-effort cascade steps that failed."},
	{authcore.MetricCacheHit, "authcore_snapshot_cache_hit_total", "User snapshot cache hits."},
	{authcore.MetricCacheMiss, "authcore_snapshot_cache_miss_total", "User snapshot cache misses."},
	{authcore.MetricLogout, "authcore_logout_total", "Voluntary logouts."},
}

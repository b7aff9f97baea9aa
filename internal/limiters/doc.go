// Package limiters implements the Redis fixed-window throttles guarding
// OTP issuance and credential checks. Counters are INCR+EXPIRE windows;
// the first increment arms the window TTL.
package limiters

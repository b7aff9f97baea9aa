// Package stores contains the Redis-backed record stores for OTP
// challenges, refresh-token records, and the cached user snapshot.
//
// Records use compact versioned binary encodings with fixed-offset
// mutable fields so validation steps (attempt counting, verified-flag
// transitions, single-use consumption) can run atomically inside Redis
// via Lua, never as read-modify-write round trips.
package stores

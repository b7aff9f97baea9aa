// Package session implements the device-bound session registry for
// authcore: model, binary codec, and the Redis-backed store.
//
// # Record lifecycle
//
// One record per session id. A repeated login from the same device
// fingerprint reuses and reactivates the existing record instead of
// creating a duplicate. Revocation flips the active flag and stamps the
// logout metadata; the record is retained for a bounded audit window
// rather than deleted.
//
// # Storage layout
//
// Records are encoded with a compact versioned binary codec. The mutable
// fields (active flag, logout reason, activity and logout timestamps)
// live at fixed offsets so Lua scripts can patch them atomically inside
// Redis without a read-modify-write race. A per-user set indexes active
// sessions; a per-device key maps a fingerprint hash to its session id.
//
// # Architecture boundaries
//
// This package owns session persistence. Policy — who may revoke what,
// admin exemption, expiry semantics on the request path — lives in the
// root engine.
package session

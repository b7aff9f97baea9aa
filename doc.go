// Package authcore provides the credential and session lifecycle engine
// for the quickmeds backend: OTP-gated two-step registration, argon2id
// credentials, dual JWT issuance with per-session refresh records,
// device-aware Redis session tracking, and a full invalidation cascade
// on logout, password reset, and account deletion.
//
// The engine is embeddable: the host supplies its user database through
// [UserProvider] and its delivery channel through [Notifier], and wires
// everything together with [Builder]. Engine methods are safe to call
// from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], error variables, and value types. Session encoding, OTP
// challenge state, refresh records, rate limiting, and audit dispatch
// live under internal/ and are never exported. The client-side refresh
// governor lives in the standalone refresh sub-package and imports
// nothing from here.
//
// # What this package must NOT do
//
//   - Expose Redis clients, stores, or record encodings in its API.
//   - Store plaintext codes, passwords, or refresh tokens anywhere.
//   - Reveal whether an identifier exists on the anti-enumeration
//     paths (ForgotPassword, ResendOTP).
package authcore

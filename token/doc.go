// Package token implements the dual-key JWT issuer for authcore.
//
// # Token classes
//
// Access and refresh tokens are both signed JWTs carrying {id, email,
// type, exp} claims (plus role and session id on access tokens), but they
// are signed and verified with distinct keys and distinct type markers.
// An access token can never be accepted where a refresh token is required
// and vice versa: the signature check fails first, the type claim check
// is the backstop.
//
// # Architecture boundaries
//
// This package owns signing and verification only. Refresh-token
// persistence, session validation, and revocation live in the root
// engine and internal/stores.
//
// # What this package must NOT do
//
//   - Access Redis or perform any I/O.
//   - Import authcore, session, or internal/stores.
//   - Persist or log token material.
package token

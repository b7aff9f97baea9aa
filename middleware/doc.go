// Package middleware adapts authcore validation to net/http handlers.
//
// [Guard] reads the Authorization bearer token, calls Engine.Validate,
// and injects the resulting [authcore.Principal] into the request
// context. Expired access tokens are rejected with a machine-readable
// TOKEN_EXPIRED code so clients can route the response into their
// refresh coordinator; every other rejection is terminal for the
// request.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It makes no
// authentication decisions of its own and never touches Redis directly.
package middleware

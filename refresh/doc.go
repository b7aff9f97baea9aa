// Package refresh implements the client-side single-flight governor
// that serializes concurrent token-refresh attempts.
//
// # State machine
//
// Authenticated → (access token rejected as expired) → Refreshing →
// (success) → Authenticated, or → (failure) → LoggedOut. At most one
// refresh call is in flight per Coordinator; callers that hit an
// expired token while a flight is running enqueue as waiters and share
// its outcome. Each waiter's original request is retried exactly once
// with the new token; a second expiry after the retry is a hard logout,
// never another refresh. Rejections that are not expiry (bad signature,
// wrong token class) bypass the state machine entirely and log the
// client out; refreshing cannot repair an unrecoverable token. That
// hard logout depends on Config.IsUnrecoverable recognizing the error:
// without the classifier the Coordinator cannot tell a signature
// rejection from a transient transport failure and passes both through
// without a state change.
//
// # Architecture boundaries
//
// The Coordinator is transport-agnostic: the host supplies the refresh
// call and the error classifiers. It holds no lock across the refresh
// call and bounds it with a timeout.
//
// # What this package must NOT do
//
//   - Import authcore, token, or session.
//   - Retry a request more than once per refresh.
//   - Start a second flight while one is running.
package refresh

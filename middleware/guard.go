package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/quickmeds/authcore"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by [Guard].
func PrincipalFromContext(ctx context.Context) (*authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.Principal)
	return p, ok
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Guard enforces access-token validation on the wrapped handler. Admin
// principals skip the session registry inside Engine.Validate; everyone
// else needs a live session bound to the token.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED")
				return
			}

			ctx := authcore.WithClientIP(r.Context(), clientIP(r))
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())
			if fp := r.Header.Get("X-Device-Fingerprint"); fp != "" {
				ctx = authcore.WithDeviceFingerprint(ctx, fp)
			}

			p, err := engine.Validate(ctx, token)
			if err != nil {
				status, code := mapValidateErr(err)
				writeError(w, status, "unauthorized", code)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole layers a role check on top of [Guard]. Use it after Guard
// in the chain.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", "FORBIDDEN")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mapValidateErr distinguishes the one recoverable rejection. Clients
// hand TOKEN_EXPIRED responses to their refresh coordinator; everything
// else ends the session client-side.
func mapValidateErr(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, authcore.ErrSessionInvalid), errors.Is(err, authcore.ErrSessionRequired):
		return http.StatusUnauthorized, "SESSION_INVALID"
	case errors.Is(err, authcore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusUnauthorized, "TOKEN_INVALID"
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

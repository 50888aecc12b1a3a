package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

// identityKey carries the authenticated caller identity in the request
// context.
const identityKey contextKey = "identity"

// Identity returns middleware that resolves the caller's identity from a
// bearer token (Authorization header or X-API-Key). tokens maps token values
// to identity names. When the map is empty the middleware runs in dev mode:
// the X-Agbero-Identity header names the caller directly.
func Identity(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Liveness probes stay unauthenticated.
			if r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			if len(tokens) == 0 {
				identity := strings.TrimSpace(r.Header.Get("X-Agbero-Identity"))
				if identity == "" {
					writeUnauthorized(w, "missing identity header")
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			identity := resolveToken(tokens, token)
			if identity == "" {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// CallerIdentity returns the authenticated identity from the request context,
// or the empty string when authentication has not run.
func CallerIdentity(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey).(string)
	return identity
}

func withIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// resolveToken compares the presented token against every configured token in
// constant time so the lookup leaks no timing information.
func resolveToken(tokens map[string]string, presented string) string {
	var identity string
	for token, name := range tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(presented)) == 1 {
			identity = name
		}
	}
	return identity
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

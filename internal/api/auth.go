package api

import (
	"crypto/subtle"
	"net/http"
)

// AccessTokenHeader carries the shared API secret.
const AccessTokenHeader = "x-dish-access-token"

// RequireToken wraps next with shared-token authentication. /health stays
// open so load balancers can probe without credentials. With an empty token
// authentication is disabled entirely.
func RequireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(AccessTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "invalid or missing access token",
				Code:  "UNAUTHORIZED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

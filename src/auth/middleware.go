package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// RequireToken guards a route group with a shared-secret bearer token.
// Comparison is constant-time so the token cannot be probed byte by byte.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := bearerToken(r)
			if presented == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.WithFields(logger.Fields{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("[auth] rejected request with invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header, falling
// back to X-Webhook-Token for producers that cannot set custom auth headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return r.Header.Get("X-Webhook-Token")
}

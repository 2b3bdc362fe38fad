package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

const InternalSecretHeader = "X-Internal-Secret"

// InternalGate admits machine-to-machine requests carrying the shared
// secret. The secret is looked up on every request so rotation needs no
// restart. An empty configured secret rejects everything.
func InternalGate(secret func() string, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := strings.TrimSpace(secret())
			provided := strings.TrimSpace(r.Header.Get(InternalSecretHeader))

			if expected == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				logger.Warn("internal_authorization_failed", map[string]any{
					"path":              r.URL.Path,
					"ip":                observability.ClientIP(r),
					"header_present":    provided != "",
					"secret_configured": expected != "",
				})
				httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

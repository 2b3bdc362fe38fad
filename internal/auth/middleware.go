package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

// ErrUnknownSubject is returned by an IdentityLoader when the token subject
// has no matching user.
var ErrUnknownSubject = errors.New("unknown token subject")

type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

type IdentityLoader interface {
	LoadIdentity(ctx context.Context, id uuid.UUID) (Identity, error)
}

type Authenticator struct {
	tokens TokenVerifier
	loader IdentityLoader
	logger *observability.Logger
}

func NewAuthenticator(tokens TokenVerifier, loader IdentityLoader, logger *observability.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, loader: loader, logger: logger}
}

// Middleware rejects requests without a valid bearer token for an existing
// user and attaches the caller's Identity otherwise. Ban state is not
// consulted here.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := a.tokens.Verify(token)
		if err != nil {
			httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		identity, err := a.loader.LoadIdentity(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, ErrUnknownSubject) {
				httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			observability.CaptureError(a.logger, "load_identity_failed", err, map[string]any{"user_id": claims.Subject.String()})
			httpx.WriteMessage(w, http.StatusInternalServerError, "internal_server_error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// BearerToken extracts the token from a "Bearer <token>" header value. The
// scheme is matched case-sensitively.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

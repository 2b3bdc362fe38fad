package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"coraza-store/internal/httpx"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

func Admin(ctx context.Context) (Identity, error) {
	return requireRole(ctx, RoleAdmin)
}

func Reseller(ctx context.Context) (Identity, error) {
	return requireRole(ctx, RoleReseller)
}

func requireRole(ctx context.Context, want Role) (Identity, error) {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	if !identity.Role.Is(want) {
		return Identity{}, ErrForbidden
	}
	return identity, nil
}

// RequireRole is the middleware form of the role extractors. It must run
// after Authenticator.Middleware.
func RequireRole(role Role) func(http.Handler) http.Handler {
	forbidden := "requires_" + strings.ToLower(string(role)) + "_role"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := requireRole(r.Context(), role); err != nil {
				if errors.Is(err, ErrForbidden) {
					httpx.WriteMessage(w, http.StatusForbidden, forbidden)
					return
				}
				httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Role is a closed set. Values outside it never satisfy a gate.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleUser     Role = "User"
	RoleReseller Role = "Reseller"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleReseller:
		return true
	}
	return false
}

// Is reports whether r is a known role equal to want.
func (r Role) Is(want Role) bool {
	switch r {
	case RoleAdmin:
		return want == RoleAdmin
	case RoleUser:
		return want == RoleUser
	case RoleReseller:
		return want == RoleReseller
	}
	return false
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// ActorID returns the caller id for audit entries, or nil when the request
// carries no identity.
func ActorID(ctx context.Context) *uuid.UUID {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return nil
	}
	id := identity.ID
	return &id
}

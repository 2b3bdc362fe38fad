package user

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrDuplicate     = errors.New("username or email already registered")
	ErrAlreadyBanned = errors.New("user already banned")
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	IsActive     bool       `json:"is_active"`
	IPAddress    *string    `json:"ip_address"`
	Banned       bool       `json:"banned"`
	BanReason    *string    `json:"ban_reason"`
}

func (u User) Identity() auth.Identity {
	return auth.Identity{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Update holds the fields an admin may change. Nil fields are left as is.
type Update struct {
	Username     *string
	Email        *string
	Role         *auth.Role
	IsActive     *bool
	Banned       *bool
	BanReason    *string
	PasswordHash *string
}

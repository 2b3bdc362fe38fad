package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/observability"
	"coraza-store/internal/user"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrWrongPassword   = errors.New("wrong password")
	ErrBanned          = errors.New("user is banned")
	ErrInvalidUsername = errors.New("username format is invalid")
	ErrInvalidEmail    = errors.New("email format is invalid")
	ErrWeakPassword    = errors.New("password does not meet requirements")
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, ip *string, at time.Time) error
}

type History interface {
	Record(ctx context.Context, userID *uuid.UUID, success bool, ip *string) error
}

type Tokens interface {
	Issue(userID uuid.UUID) (string, error)
	Verify(token string) (auth.Claims, error)
}

type Service struct {
	users   Users
	history History
	tokens  Tokens
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(users Users, history History, tokens Tokens) *Service {
	return &Service{users: users, history: history, tokens: tokens, now: time.Now}
}

func (s *Service) WithMetrics(metrics *observability.Metrics) *Service {
	s.metrics = metrics
	return s
}

type LoginRequest struct {
	Username string
	Password string
	IP       *string
	// Channel labels metrics, e.g. "api" or "loader".
	Channel string
	// RejectBanned turns a correct password on a banned account into ErrBanned.
	RejectBanned bool
}

type Session struct {
	User  user.User
	Token string
}

// Login verifies credentials and writes exactly one login history entry
// for the attempt, whatever its outcome.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return Session{}, err
		}
		if err := s.history.Record(ctx, nil, false, req.IP); err != nil {
			return Session{}, err
		}
		s.metrics.ObserveLogin(req.Channel, "not_found")
		return Session{}, ErrUnknownUser
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		if err := s.history.Record(ctx, &u.ID, false, req.IP); err != nil {
			return Session{}, err
		}
		s.metrics.ObserveLogin(req.Channel, "wrong_password")
		return Session{User: u}, ErrWrongPassword
	}

	if req.RejectBanned && u.Banned {
		if err := s.history.Record(ctx, &u.ID, false, req.IP); err != nil {
			return Session{}, err
		}
		s.metrics.ObserveLogin(req.Channel, "banned")
		return Session{User: u}, ErrBanned
	}

	if err := s.history.Record(ctx, &u.ID, true, req.IP); err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, u.ID, req.IP, now); err != nil {
		return Session{}, err
	}
	u.LastLogin = &now
	if req.IP != nil {
		u.IPAddress = req.IP
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}

	s.metrics.ObserveLogin(req.Channel, "success")
	return Session{User: u, Token: token}, nil
}

type Registration struct {
	Username string
	Email    string
	Password string
	IP       *string
}

func (r Registration) Validate() error {
	if !usernameRegex.MatchString(r.Username) {
		return ErrInvalidUsername
	}
	address, err := mail.ParseAddress(r.Email)
	if err != nil || address.Address != r.Email {
		return ErrInvalidEmail
	}
	if !auth.PasswordLengthOK(r.Password) {
		return ErrWeakPassword
	}
	return nil
}

// Register creates an active, unbanned account with the User role.
func (s *Service) Register(ctx context.Context, reg Registration) (user.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return user.User{}, err
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return user.User{}, err
	}

	created, err := s.users.Create(ctx, user.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         auth.RoleUser,
		CreatedAt:    s.now().UTC(),
		IsActive:     true,
		IPAddress:    reg.IP,
	})
	if err != nil {
		return user.User{}, err
	}

	return created, nil
}

func (s *Service) IssueToken(u user.User) (string, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", u.ID, err)
	}
	return token, nil
}

// Validate resolves a token to its user. Any failure is ErrInvalidToken.
func (s *Service) Validate(ctx context.Context, token string) (user.User, error) {
	claims, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return user.User{}, auth.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, auth.ErrInvalidToken
		}
		return user.User{}, err
	}

	return u, nil
}

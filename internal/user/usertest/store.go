// Package usertest provides an in-memory user store for handler tests.
package usertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/user"
)

// Store mirrors the Postgres repository's uniqueness and conditional-update
// behaviour.
type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]user.User
	Err   error
}

func NewStore(seed ...user.User) *Store {
	s := &Store{users: make(map[uuid.UUID]user.User)}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

// Seed inserts an active user with a bcrypt hash of password.
func (s *Store) Seed(username, password string, role auth.Role) user.User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := user.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return u
}

func (s *Store) Get(id uuid.UUID) (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return user.User{}, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return user.User{}, s.Err
	}
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (s *Store) LoadIdentity(ctx context.Context, id uuid.UUID) (auth.Identity, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		if err == user.ErrNotFound {
			return auth.Identity{}, auth.ErrUnknownSubject
		}
		return auth.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *Store) List(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return user.User{}, s.Err
	}
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return user.User{}, user.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, update user.Update) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return user.User{}, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	if update.Banned != nil {
		u.Banned = *update.Banned
	}
	if update.BanReason != nil {
		u.BanReason = update.BanReason
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	for otherID, other := range s.users {
		if otherID != id && (other.Username == u.Username || other.Email == u.Email) {
			return user.User{}, user.ErrDuplicate
		}
	}
	s.users[id] = u
	return u, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) RecordLogin(_ context.Context, id uuid.UUID, ip *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.LastLogin = &at
	if ip != nil {
		u.IPAddress = ip
	}
	s.users[id] = u
	return nil
}

func (s *Store) Ban(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	if u.Banned {
		return user.ErrAlreadyBanned
	}
	u.Banned = true
	u.BanReason = &reason
	s.users[id] = u
	return nil
}

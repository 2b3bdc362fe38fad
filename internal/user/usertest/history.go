package usertest

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Attempt struct {
	UserID  *uuid.UUID
	Success bool
	IP      *string
}

// History records login attempts in memory.
type History struct {
	mu       sync.Mutex
	attempts []Attempt
	Err      error
}

func (h *History) Record(_ context.Context, userID *uuid.UUID, success bool, ip *string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.attempts = append(h.attempts, Attempt{UserID: userID, Success: success, IP: ip})
	return nil
}

func (h *History) Attempts() []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Attempt(nil), h.attempts...)
}

// Count returns how many attempts match success for userID. A nil userID
// counts attempts recorded without a user.
func (h *History) Count(userID *uuid.UUID, success bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, attempt := range h.attempts {
		if attempt.Success != success {
			continue
		}
		switch {
		case userID == nil && attempt.UserID == nil:
			count++
		case userID != nil && attempt.UserID != nil && *userID == *attempt.UserID:
			count++
		}
	}
	return count
}

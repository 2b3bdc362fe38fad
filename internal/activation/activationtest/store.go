// Package activationtest provides an in-memory activation key store with the
// same conditional-update semantics as the Postgres repository.
package activationtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coraza-store/internal/activation"
)

type Store struct {
	mu       sync.Mutex
	keys     map[uuid.UUID]activation.Key
	products map[uuid.UUID]bool
}

// NewStore accepts keys for the listed products only. With no products every
// product id is accepted.
func NewStore(products ...uuid.UUID) *Store {
	s := &Store{keys: make(map[uuid.UUID]activation.Key), products: make(map[uuid.UUID]bool)}
	for _, id := range products {
		s.products[id] = true
	}
	return s
}

func (s *Store) Get(id uuid.UUID) (activation.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	return k, ok
}

func (s *Store) Create(_ context.Context, req activation.IssueRequest, generatedBy *uuid.UUID) (activation.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.products) > 0 && !s.products[req.ProductID] {
		return activation.Key{}, activation.ErrProductNotFound
	}

	duration := activation.DefaultDurationDays
	if req.DurationDays != nil {
		duration = *req.DurationDays
	}
	k := s.newKeyLocked(req.ProductID, duration, generatedBy)
	k.IsFree = req.IsFree
	s.keys[k.ID] = k
	return k, nil
}

func (s *Store) newKeyLocked(productID uuid.UUID, duration int, generatedBy *uuid.UUID) activation.Key {
	k := activation.Key{
		ID:           uuid.New(),
		Key:          uuid.NewString(),
		ProductID:    productID,
		DurationDays: duration,
		CreatedAt:    time.Now().UTC(),
	}
	if generatedBy != nil {
		k.GeneratedBy = uuid.NullUUID{UUID: *generatedBy, Valid: true}
	}
	return k
}

func (s *Store) List(context.Context) ([]activation.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activation.Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return activation.ErrNotFound
	}
	delete(s.keys, id)
	return nil
}

func (s *Store) Replace(_ context.Context, id uuid.UUID, generatedBy *uuid.UUID) (activation.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.keys[id]
	if !ok {
		return activation.Key{}, activation.ErrNotFound
	}
	if old.ReplacedBy.Valid {
		return activation.Key{}, activation.ErrAlreadyReplaced
	}

	next := s.newKeyLocked(old.ProductID, old.DurationDays, generatedBy)
	next.IsFree = old.IsFree
	next.PricePaid = old.PricePaid
	next.OrderID = old.OrderID
	s.keys[next.ID] = next

	old.IsRedeemed = true
	old.ReplacedBy = uuid.NullUUID{UUID: next.ID, Valid: true}
	s.keys[old.ID] = old
	return next, nil
}

func (s *Store) Redeem(_ context.Context, code string, userID uuid.UUID) (activation.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.keys {
		if k.Key != code || k.IsRedeemed {
			continue
		}
		k.IsRedeemed = true
		k.RedeemedBy = uuid.NullUUID{UUID: userID, Valid: true}
		s.keys[id] = k
		return k, nil
	}
	return activation.Key{}, activation.ErrInvalidKey
}

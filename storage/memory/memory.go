// Package memory provides an in-memory implementation of billing.UserStore.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Storage implements billing.UserStore using in-memory maps.
type Storage struct {
	mu         sync.RWMutex
	users      map[string]*billing.User
	byCustomer map[string]string // customer id -> user id
}

var _ billing.UserStore = (*Storage)(nil)

// New creates a new in-memory storage adapter, optionally seeded with users.
func New(users ...*billing.User) *Storage {
	s := &Storage{
		users:      make(map[string]*billing.User),
		byCustomer: make(map[string]string),
	}
	for _, u := range users {
		_ = s.SaveUser(context.Background(), u)
	}
	return s
}

// GetUser implements billing.UserStore.
func (s *Storage) GetUser(_ context.Context, userID string) (*billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, billing.ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetUserByCustomerID implements billing.UserStore.
func (s *Storage) GetUserByCustomerID(_ context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byCustomer[customerID]
	if !ok {
		return nil, billing.ErrUserNotFound
	}
	return s.users[userID].Clone(), nil
}

// SaveUser implements billing.UserStore. A copy is stored so callers may keep mutating user.
func (s *Storage) SaveUser(_ context.Context, user *billing.User) error {
	if user == nil || user.ID == "" {
		return billing.ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.users[user.ID]; ok && prev.Billing.CustomerID != "" &&
		prev.Billing.CustomerID != user.Billing.CustomerID {
		delete(s.byCustomer, prev.Billing.CustomerID)
	}
	s.users[user.ID] = user.Clone()
	if user.Billing.CustomerID != "" {
		s.byCustomer[user.Billing.CustomerID] = user.ID
	}
	return nil
}

// Len returns the number of stored users.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Package tiered layers a fast user store (Hot) over a durable one (Cold).
//
// Reads are served from Hot and fall through to Cold on a miss, warming Hot.
// Writes go to Cold first and are then copied to Hot. Cold is the source of truth:
// Hot failures never fail an operation and are reported to ErrorHandler instead.
package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the cache store (e.g., Redis, Memory)
	Hot billing.UserStore

	// Cold is the persistent store (e.g., Postgres, Firestore, MongoDB)
	Cold billing.UserStore

	// ErrorHandler is called when the hot tier fails. Optional.
	ErrorHandler func(error)
}

// Storage implements billing.UserStore over two tiers.
type Storage struct {
	hot  billing.UserStore
	cold billing.UserStore
	conf Config
}

var _ billing.UserStore = (*Storage)(nil)

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	return &Storage{
		hot:  config.Hot,
		cold: config.Cold,
		conf: config,
	}, nil
}

// GetUser implements billing.UserStore (read-through).
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	return s.readThrough(ctx, "get user",
		func(store billing.UserStore) (*billing.User, error) { return store.GetUser(ctx, userID) })
}

// GetUserByCustomerID implements billing.UserStore (read-through).
func (s *Storage) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	return s.readThrough(ctx, "get user by customer",
		func(store billing.UserStore) (*billing.User, error) { return store.GetUserByCustomerID(ctx, customerID) })
}

func (s *Storage) readThrough(ctx context.Context, op string, get func(billing.UserStore) (*billing.User, error)) (*billing.User, error) {
	user, err := get(s.hot)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, billing.ErrUserNotFound) {
		s.reportError(fmt.Errorf("hot %s: %w", op, err))
	}

	user, err = get(s.cold)
	if err != nil {
		return nil, err
	}
	if err := s.hot.SaveUser(ctx, user); err != nil {
		s.reportError(fmt.Errorf("hot warm: %w", err))
	}
	return user, nil
}

// SaveUser implements billing.UserStore (write-through).
func (s *Storage) SaveUser(ctx context.Context, user *billing.User) error {
	if err := s.cold.SaveUser(ctx, user); err != nil {
		return err
	}
	if err := s.hot.SaveUser(ctx, user); err != nil {
		s.reportError(fmt.Errorf("hot save: %w", err))
	}
	return nil
}

func (s *Storage) reportError(err error) {
	if s.conf.ErrorHandler != nil {
		s.conf.ErrorHandler(fmt.Errorf("tiered: %w", err))
	}
}

package billing

import "context"

// UserStore persists local user records.
type UserStore interface {
	// GetUser returns the user with the given id, or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByCustomerID returns the user owning a provider customer, or ErrUserNotFound.
	GetUserByCustomerID(ctx context.Context, customerID string) (*User, error)

	// SaveUser creates or replaces a user record.
	SaveUser(ctx context.Context, user *User) error
}

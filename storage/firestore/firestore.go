// Package firestore provides a Firestore implementation of billing.UserStore.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Storage implements billing.UserStore using Google Cloud Firestore.
// Users are stored one document per user id.
type Storage struct {
	client          *firestore.Client
	usersCollection string
}

var _ billing.UserStore = (*Storage)(nil)

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection for users
	// Default: "billing_users"
	UsersCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.UsersCollection == "" {
		config.UsersCollection = "billing_users"
	}
	return &Storage{
		client:          client,
		usersCollection: config.UsersCollection,
	}, nil
}

// GetUser implements billing.UserStore
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	if userID == "" {
		return nil, billing.ErrUserNotFound
	}
	snap, err := s.client.Collection(s.usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return nil, billing.ErrUserNotFound
	}
	return decodeUser(snap)
}

// GetUserByCustomerID implements billing.UserStore
func (s *Storage) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}

	docs, err := s.client.Collection(s.usersCollection).
		Where("billing.customer_id", "==", customerID).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query user by customer: %w", err)
	}
	if len(docs) == 0 {
		return nil, billing.ErrUserNotFound
	}
	return decodeUser(docs[0])
}

// SaveUser implements billing.UserStore
func (s *Storage) SaveUser(ctx context.Context, user *billing.User) error {
	if user == nil || user.ID == "" {
		return billing.ErrInvalidUser
	}
	if _, err := s.client.Collection(s.usersCollection).Doc(user.ID).Set(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func decodeUser(snap *firestore.DocumentSnapshot) (*billing.User, error) {
	var u billing.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if u.ID == "" {
		u.ID = snap.Ref.ID
	}
	if len(u.Billing.SubscriptionItems) == 0 {
		u.Billing.SubscriptionItems = nil
	}
	return &u, nil
}

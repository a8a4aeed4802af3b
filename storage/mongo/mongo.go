// Package mongo provides a MongoDB implementation of billing.UserStore.
// Users are stored one document per user, with the provider state under "stripe".
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

const customerField = "stripe.customerId"

// Config holds MongoDB storage configuration
type Config struct {
	// UsersCollection is the collection for users
	// Default: "billing_users"
	UsersCollection string
}

// Storage implements billing.UserStore using MongoDB.
type Storage struct {
	users *mongo.Collection
}

var _ billing.UserStore = (*Storage)(nil)

// New creates a new MongoDB storage adapter on db.
func New(db *mongo.Database, config Config) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database is required")
	}
	if config.UsersCollection == "" {
		config.UsersCollection = "billing_users"
	}
	return &Storage{users: db.Collection(config.UsersCollection)}, nil
}

// EnsureIndexes creates the unique customer index. Documents without a customer are not indexed.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: customerField, Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true).SetName("stripe_customer"),
	})
	if err != nil {
		return fmt.Errorf("failed to create customer index: %w", err)
	}
	return nil
}

// GetUser implements billing.UserStore
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	return s.findOne(ctx, bson.M{"_id": userID})
}

// GetUserByCustomerID implements billing.UserStore
func (s *Storage) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{customerField: customerID})
}

func (s *Storage) findOne(ctx context.Context, filter bson.M) (*billing.User, error) {
	var u billing.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(u.Billing.SubscriptionItems) == 0 {
		u.Billing.SubscriptionItems = nil
	}
	return &u, nil
}

// SaveUser implements billing.UserStore
func (s *Storage) SaveUser(ctx context.Context, user *billing.User) error {
	if user == nil || user.ID == "" {
		return billing.ErrInvalidUser
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

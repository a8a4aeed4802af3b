// Package redis provides a Redis implementation of billing.UserStore.
// Writes go through a Lua script so the customer index never points at a stale user.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Storage implements billing.UserStore using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
	save   *redis.Script
}

var _ billing.UserStore = (*Storage)(nil)

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gobilling:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gobilling:",
	}
}

// saveScript stores the user hash and moves the customer index entry.
// KEYS[1] user hash; ARGV: data, customer id, customer key prefix, user id.
const saveScript = `
local old = redis.call('HGET', KEYS[1], 'customer')
local customer = ARGV[2]
if old and old ~= '' and old ~= customer then
	local oldKey = ARGV[3] .. old
	if redis.call('GET', oldKey) == ARGV[4] then
		redis.call('DEL', oldKey)
	end
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'customer', customer)
if customer ~= '' then
	redis.call('SET', ARGV[3] .. customer, ARGV[4])
end
return 1
`

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "gobilling:"
	}
	return &Storage{
		client: client,
		config: config,
		save:   redis.NewScript(saveScript),
	}, nil
}

func (s *Storage) userKey(userID string) string {
	return s.config.KeyPrefix + "user:" + userID
}

func (s *Storage) customerPrefix() string {
	return s.config.KeyPrefix + "customer:"
}

// GetUser implements billing.UserStore
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	data, err := s.client.HGet(ctx, s.userKey(userID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u billing.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

// GetUserByCustomerID implements billing.UserStore
func (s *Storage) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}

	userID, err := s.client.Get(ctx, s.customerPrefix()+customerID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Billing.CustomerID != customerID {
		return nil, billing.ErrUserNotFound
	}
	return u, nil
}

// SaveUser implements billing.UserStore
func (s *Storage) SaveUser(ctx context.Context, user *billing.User) error {
	if user == nil || user.ID == "" {
		return billing.ErrInvalidUser
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	err = s.save.Run(ctx, s.client,
		[]string{s.userKey(user.ID)},
		string(data), user.Billing.CustomerID, s.customerPrefix(), user.ID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Package postgres provides a PostgreSQL implementation of billing.UserStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Schema creates the users table. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS billing_users (
	user_id            TEXT PRIMARY KEY,
	email              TEXT NOT NULL DEFAULT '',
	plan               TEXT NOT NULL DEFAULT '',
	customer_id        TEXT UNIQUE,
	subscription_id    TEXT NOT NULL DEFAULT '',
	subscription_items TEXT[] NOT NULL DEFAULT '{}',
	canceled           BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Storage implements billing.UserStore using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

var _ billing.UserStore = (*Storage)(nil)

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies Schema when the store is created.
	AutoMigrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{
		pool:   pool,
		config: config,
	}

	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the users table if it does not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectUser = `SELECT user_id, email, plan, COALESCE(customer_id, ''), subscription_id, subscription_items, canceled
	FROM billing_users`

// GetUser implements billing.UserStore
func (s *Storage) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	return s.queryUser(ctx, selectUser+` WHERE user_id = $1`, userID)
}

// GetUserByCustomerID implements billing.UserStore
func (s *Storage) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}
	return s.queryUser(ctx, selectUser+` WHERE customer_id = $1`, customerID)
}

func (s *Storage) queryUser(ctx context.Context, query string, arg string) (*billing.User, error) {
	var u billing.User
	var items []string

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Plan,
		&u.Billing.CustomerID,
		&u.Billing.SubscriptionID,
		&items,
		&u.Billing.Canceled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(items) > 0 {
		u.Billing.SubscriptionItems = items
	}
	return &u, nil
}

// SaveUser implements billing.UserStore. An empty customer id is stored as NULL
// so the uniqueness constraint only applies to real customers.
func (s *Storage) SaveUser(ctx context.Context, user *billing.User) error {
	if user == nil || user.ID == "" {
		return billing.ErrInvalidUser
	}

	items := user.Billing.SubscriptionItems
	if items == nil {
		items = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_users
			(user_id, email, plan, customer_id, subscription_id, subscription_items, canceled, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			plan = EXCLUDED.plan,
			customer_id = EXCLUDED.customer_id,
			subscription_id = EXCLUDED.subscription_id,
			subscription_items = EXCLUDED.subscription_items,
			canceled = EXCLUDED.canceled,
			updated_at = EXCLUDED.updated_at`,
		user.ID,
		user.Email,
		user.Plan,
		user.Billing.CustomerID,
		user.Billing.SubscriptionID,
		items,
		user.Billing.Canceled,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

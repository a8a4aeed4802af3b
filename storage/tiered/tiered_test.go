package tiered

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gobilling/pkg/billing"
	"github.com/mihaimyh/gobilling/storage/memory"
	"github.com/mihaimyh/gobilling/storage/storagetest"
)

// brokenStore fails every call.
type brokenStore struct{ err error }

func (b *brokenStore) GetUser(context.Context, string) (*billing.User, error) { return nil, b.err }
func (b *brokenStore) GetUserByCustomerID(context.Context, string) (*billing.User, error) {
	return nil, b.err
}
func (b *brokenStore) SaveUser(context.Context, *billing.User) error { return b.err }

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
		assert.NoError(t, err)
		assert.NotNil(t, storage)
	})

	t.Run("nil hot storage", func(t *testing.T) {
		storage, err := New(Config{Cold: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "hot and cold storage are required")
	})

	t.Run("nil cold storage", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
	})
}

func TestStorage_UserStore(t *testing.T) {
	storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
	require.NoError(t, err)
	storagetest.Run(t, storage)
}

func TestStorage_ReadThroughWarmsHot(t *testing.T) {
	hot := memory.New()
	cold := memory.New(&billing.User{ID: "u1", Plan: "pro", Billing: billing.BillingRecord{CustomerID: "cus_1"}})
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	user, err := storage.GetUserByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	warmed, err := hot.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", warmed.Plan)
}

func TestStorage_HotServesFirst(t *testing.T) {
	hot := memory.New(&billing.User{ID: "u1", Plan: "team"})
	cold := memory.New(&billing.User{ID: "u1", Plan: "pro"})
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)

	user, err := storage.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "team", user.Plan)
}

func TestStorage_WriteThrough(t *testing.T) {
	hot := memory.New()
	cold := memory.New()
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.SaveUser(ctx, &billing.User{ID: "u1", Plan: "pro"}))

	for name, store := range map[string]billing.UserStore{"hot": hot, "cold": cold} {
		user, err := store.GetUser(ctx, "u1")
		require.NoError(t, err, name)
		assert.Equal(t, "pro", user.Plan, name)
	}
}

func TestStorage_HotFailureIsReported(t *testing.T) {
	hotErr := errors.New("connection refused")
	var reported []error
	cold := memory.New(&billing.User{ID: "u1", Plan: "pro"})
	storage, err := New(Config{
		Hot:          &brokenStore{err: hotErr},
		Cold:         cold,
		ErrorHandler: func(err error) { reported = append(reported, err) },
	})
	require.NoError(t, err)
	ctx := context.Background()

	user, err := storage.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", user.Plan)

	require.NoError(t, storage.SaveUser(ctx, &billing.User{ID: "u1", Plan: "team"}))

	// read error, warm error, save error
	require.Len(t, reported, 3)
	for _, err := range reported {
		assert.ErrorIs(t, err, hotErr)
	}
}

func TestStorage_ColdFailureFailsSave(t *testing.T) {
	coldErr := errors.New("disk full")
	hot := memory.New()
	storage, err := New(Config{Hot: hot, Cold: &brokenStore{err: coldErr}})
	require.NoError(t, err)
	ctx := context.Background()

	err = storage.SaveUser(ctx, &billing.User{ID: "u1"})
	assert.ErrorIs(t, err, coldErr)

	_, err = hot.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}

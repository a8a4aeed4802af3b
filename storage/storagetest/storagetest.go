// Package storagetest checks that a billing.UserStore behaves like the reference store.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Run exercises store. The store must be empty; ids are prefixed with t.Name()
// so several runs can share a backend.
func Run(t *testing.T, store billing.UserStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.GetUser(ctx, id(t, "missing")); !errors.Is(err, billing.ErrUserNotFound) {
			t.Errorf("GetUser() error = %v, want ErrUserNotFound", err)
		}
		if _, err := store.GetUserByCustomerID(ctx, id(t, "cus_missing")); !errors.Is(err, billing.ErrUserNotFound) {
			t.Errorf("GetUserByCustomerID() error = %v, want ErrUserNotFound", err)
		}
		if _, err := store.GetUserByCustomerID(ctx, ""); !errors.Is(err, billing.ErrUserNotFound) {
			t.Errorf("GetUserByCustomerID(\"\") error = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		if err := store.SaveUser(ctx, nil); !errors.Is(err, billing.ErrInvalidUser) {
			t.Errorf("SaveUser(nil) error = %v, want ErrInvalidUser", err)
		}
		if err := store.SaveUser(ctx, &billing.User{Email: "x@example.com"}); !errors.Is(err, billing.ErrInvalidUser) {
			t.Errorf("SaveUser(no id) error = %v, want ErrInvalidUser", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		user := &billing.User{
			ID:    id(t, "u1"),
			Email: "ada@example.com",
			Plan:  "pro",
			Billing: billing.BillingRecord{
				CustomerID:        id(t, "cus_1"),
				SubscriptionID:    "sub_1",
				SubscriptionItems: []string{"si_1", "si_2"},
				Canceled:          true,
			},
		}
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("SaveUser() error = %v", err)
		}

		got, err := store.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if !got.Equal(user) {
			t.Errorf("GetUser() = %+v, want %+v", got, user)
		}

		got, err = store.GetUserByCustomerID(ctx, user.Billing.CustomerID)
		if err != nil {
			t.Fatalf("GetUserByCustomerID() error = %v", err)
		}
		if !got.Equal(user) {
			t.Errorf("GetUserByCustomerID() = %+v, want %+v", got, user)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		user := &billing.User{
			ID:    id(t, "u1"),
			Email: "ada@example.com",
			Plan:  "pro",
			Billing: billing.BillingRecord{
				CustomerID:        id(t, "cus_old"),
				SubscriptionID:    "sub_1",
				SubscriptionItems: []string{"si_1"},
			},
		}
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("SaveUser() error = %v", err)
		}

		user.Plan = billing.FreePlanID
		user.Billing = billing.BillingRecord{CustomerID: id(t, "cus_new")}
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("SaveUser() error = %v", err)
		}

		got, err := store.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.Plan != billing.FreePlanID || got.Billing.SubscriptionID != "" || len(got.Billing.SubscriptionItems) != 0 {
			t.Errorf("GetUser() = %+v, want cleared subscription", got)
		}
		if _, err := store.GetUserByCustomerID(ctx, id(t, "cus_old")); !errors.Is(err, billing.ErrUserNotFound) {
			t.Errorf("old customer id still resolves: %v", err)
		}
		if _, err := store.GetUserByCustomerID(ctx, id(t, "cus_new")); err != nil {
			t.Errorf("GetUserByCustomerID(new) error = %v", err)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		user := &billing.User{
			ID:      id(t, "u1"),
			Plan:    "pro",
			Billing: billing.BillingRecord{SubscriptionItems: []string{"si_1"}},
		}
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("SaveUser() error = %v", err)
		}
		user.Plan = "team"
		user.Billing.SubscriptionItems[0] = "si_mutated"

		got, err := store.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		got.Billing.SubscriptionItems[0] = "si_other"

		again, err := store.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if again.Plan != "pro" || again.Billing.SubscriptionItems[0] != "si_1" {
			t.Errorf("stored user was mutated: %+v", again)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := &billing.User{ID: id(t, fmt.Sprintf("u%d", i)), Plan: "pro"}
				if err := store.SaveUser(ctx, u); err != nil {
					errs <- err
					return
				}
				if _, err := store.GetUser(ctx, u.ID); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent access error: %v", err)
		}
	})
}

func id(t *testing.T, suffix string) string {
	return t.Name() + "/" + suffix
}

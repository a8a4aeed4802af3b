package billing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgrade_NewCustomer(t *testing.T) {
	user := &User{ID: "u1", Email: "ada@example.com", Plan: "free"}
	env := newTestEnv(t, false, user)

	result, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User:            user,
		PlanID:          "pro",
		PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)
	assert.False(t, result.NeedsAction())

	assert.Equal(t, 1, env.client.called("CreateCustomer"))
	assert.Equal(t, 1, env.client.called("CreateSubscription"))
	assert.Equal(t, 0, env.client.called("AttachPaymentMethod"))

	params := env.client.lastParams
	assert.Equal(t, "cus_new", params.CustomerID)
	assert.Equal(t, "plan_pro", params.PriceID)
	assert.True(t, params.TrialFromPlan)
	assert.True(t, params.AllowIncomplete)

	saved := env.store.get("u1")
	assert.Equal(t, "pro", saved.Plan)
	assert.Equal(t, "cus_new", saved.Billing.CustomerID)
	assert.Equal(t, "sub_new", saved.Billing.SubscriptionID)
	assert.Equal(t, []string{"si_new"}, saved.Billing.SubscriptionItems)

	require.Len(t, env.notifier.sent, 1)
	mail := env.notifier.sent[0]
	assert.Equal(t, "ada@example.com", mail.Recipient)
	assert.Equal(t, "Thank you for upgrading", mail.Subject)
	assert.Contains(t, mail.Body, "upgraded your account to the Pro plan")

	assert.Equal(t, []string{"u1:pro"}, env.listener.upgrades)
}

func TestUpgrade_ExistingSubscriptionUpdatedInPlace(t *testing.T) {
	user := &User{ID: "u1", Email: "a@example.com", Plan: "pro", Billing: BillingRecord{
		CustomerID: "cus_1", SubscriptionID: "sub_1", SubscriptionItems: []string{"si_1"},
	}}
	env := newTestEnv(t, false, user)
	env.client.subscriptions["sub_1"] = &Subscription{
		ID: "sub_1", CustomerID: "cus_1", Status: SubscriptionActive,
		Items: []SubscriptionItem{{ID: "si_1", PriceID: "plan_pro"}},
	}

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User:           user,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PlanID:         "team",
		CouponCode:     "WINTER10",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, env.client.called("UpdateSubscription"))
	assert.Equal(t, 0, env.client.called("CreateSubscription"))
	assert.Equal(t, 0, env.client.called("CreateCustomer"))
	assert.Equal(t, "si_1", env.client.lastParams.ItemID)
	assert.Equal(t, "plan_team", env.client.lastParams.PriceID)
	assert.Equal(t, "WINTER10", env.client.lastParams.CouponCode)

	assert.Equal(t, "team", env.store.get("u1").Plan)
}

func TestUpgrade_AttachesCardToExistingCustomer(t *testing.T) {
	user := &User{ID: "u1", Email: "a@example.com", Billing: BillingRecord{CustomerID: "cus_1"}}
	env := newTestEnv(t, false, user)

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User: user, CustomerID: "cus_1", PlanID: "pro", PaymentMethodID: "pm_9",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.client.called("AttachPaymentMethod"))
	assert.Equal(t, 0, env.client.called("CreateCustomer"))
	assert.Equal(t, "cus_1", env.client.lastParams.CustomerID)
}

func TestUpgrade_CardRequired(t *testing.T) {
	user := &User{ID: "u1"}
	env := newTestEnv(t, false, user)

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{User: user, PlanID: "pro"})
	if !errors.Is(err, ErrCardRequired) {
		t.Fatalf("error = %v, want ErrCardRequired", err)
	}
	if len(env.client.calls) != 0 {
		t.Errorf("unexpected provider calls: %v", env.client.calls)
	}
}

func TestUpgrade_InvalidPlanMakesNoSubscriptionCall(t *testing.T) {
	user := &User{ID: "u1", Billing: BillingRecord{CustomerID: "cus_1"}}
	env := newTestEnv(t, false, user)

	for _, planID := range []string{"enterprise", "free", ""} {
		_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
			User: user, CustomerID: "cus_1", PlanID: planID, PaymentMethodID: "pm_1",
		})
		if !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("plan %q: error = %v, want ErrInvalidPlan", planID, err)
		}
	}
	if n := env.client.called("CreateSubscription") + env.client.called("UpdateSubscription"); n != 0 {
		t.Errorf("subscription calls = %d, want 0", n)
	}
	if env.store.saves != 0 {
		t.Errorf("store saves = %d, want 0", env.store.saves)
	}
}

func TestUpgrade_UnknownCouponDropped(t *testing.T) {
	user := &User{ID: "u1", Billing: BillingRecord{CustomerID: "cus_1"}}
	env := newTestEnv(t, false, user)

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User: user, CustomerID: "cus_1", PlanID: "pro", CouponCode: "BOGUS",
	})
	require.NoError(t, err)
	assert.Equal(t, "", env.client.lastParams.CouponCode)
	assert.Equal(t, "pro", env.store.get("u1").Plan)
}

func TestUpgrade_CardDeclined(t *testing.T) {
	user := &User{ID: "u1", Billing: BillingRecord{CustomerID: "cus_1"}}
	env := newTestEnv(t, false, user)
	env.client.attachErr = errors.New("card_declined")

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User: user, CustomerID: "cus_1", PlanID: "pro", PaymentMethodID: "pm_bad",
	})
	if !errors.Is(err, ErrCardDeclined) {
		t.Fatalf("error = %v, want ErrCardDeclined", err)
	}
	if !IsCardError(err) || IsInputError(err) {
		t.Error("declined card should classify as a card error")
	}
	if env.client.called("CreateSubscription") != 0 {
		t.Error("no subscription should be created after a declined card")
	}
}

func TestUpgrade_NewCustomerDeclined(t *testing.T) {
	user := &User{ID: "u1"}
	env := newTestEnv(t, false, user)
	env.client.createErr = errors.New("invalid payment method")

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
		User: user, PlanID: "pro", PaymentMethodID: "pm_bad",
	})
	if !errors.Is(err, ErrCardDeclined) {
		t.Fatalf("error = %v, want ErrCardDeclined", err)
	}
	if env.store.get("u1").Billing.CustomerID != "" {
		t.Error("customer id must not be saved when creation failed")
	}
}

func TestUpgrade_AuthenticationRequired(t *testing.T) {
	tests := []struct {
		name       string
		sub        *Subscription
		wantAction ClientAction
		wantSecret string
	}{
		{
			name: "setup intent",
			sub: &Subscription{ID: "sub_x", Status: SubscriptionIncomplete,
				PendingSetupIntent: &Intent{Status: IntentRequiresAction, ClientSecret: "seti_secret"},
				PaymentIntent:      &Intent{Status: IntentRequiresAction, ClientSecret: "pi_secret"}},
			wantAction: ActionCardSetup,
			wantSecret: "seti_secret",
		},
		{
			name: "payment intent",
			sub: &Subscription{ID: "sub_x", Status: SubscriptionIncomplete,
				PaymentIntent: &Intent{Status: IntentRequiresAction, ClientSecret: "pi_secret"}},
			wantAction: ActionCardPayment,
			wantSecret: "pi_secret",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{ID: "u1", Email: "a@example.com", Plan: "free", Billing: BillingRecord{CustomerID: "cus_1"}}
			env := newTestEnv(t, false, user)
			env.client.nextSubscription = tt.sub

			result, err := env.service.Upgrade(context.Background(), UpgradeRequest{
				User: user, CustomerID: "cus_1", PlanID: "pro",
			})
			require.NoError(t, err)
			assert.True(t, result.NeedsAction())
			assert.Equal(t, tt.wantAction, result.ActionRequired)
			assert.Equal(t, tt.wantSecret, result.Secret)

			assert.Equal(t, "free", env.store.get("u1").Plan, "nothing is committed before authentication")
			assert.Empty(t, env.notifier.sent)
			assert.Empty(t, env.listener.upgrades)
		})
	}
}

func TestUpgrade_IncompleteFailures(t *testing.T) {
	tests := []struct {
		name string
		sub  *Subscription
		want error
	}{
		{"no intent", &Subscription{ID: "sub_x", Status: SubscriptionIncomplete}, ErrTransactionIncomplete},
		{"needs new card", &Subscription{ID: "sub_x", Status: SubscriptionIncomplete,
			PaymentIntent: &Intent{Status: IntentRequiresPaymentMethod}}, ErrTryAnotherCard},
		{"canceled intent", &Subscription{ID: "sub_x", Status: SubscriptionIncomplete,
			PaymentIntent: &Intent{Status: "canceled"}}, ErrTransactionIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{ID: "u1", Plan: "free", Billing: BillingRecord{CustomerID: "cus_1"}}
			env := newTestEnv(t, false, user)
			env.client.nextSubscription = tt.sub

			_, err := env.service.Upgrade(context.Background(), UpgradeRequest{
				User: user, CustomerID: "cus_1", PlanID: "pro",
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if env.store.get("u1").Plan != "free" {
				t.Error("plan must not change")
			}
		})
	}
}

func TestUpgrade_TrialingIsSuccess(t *testing.T) {
	user := &User{ID: "u1", Email: "a@example.com", Billing: BillingRecord{CustomerID: "cus_1"}}
	env := newTestEnv(t, false, user)
	env.client.nextSubscription = &Subscription{
		ID: "sub_t", CustomerID: "cus_1", Status: SubscriptionTrialing,
		Items: []SubscriptionItem{{ID: "si_t", PriceID: "plan_pro"}},
	}

	_, err := env.service.Upgrade(context.Background(), UpgradeRequest{User: user, CustomerID: "cus_1", PlanID: "pro"})
	require.NoError(t, err)
	assert.Equal(t, "sub_t", env.store.get("u1").Billing.SubscriptionID)
	assert.Len(t, env.notifier.sent, 1)
}

func TestAddCard(t *testing.T) {
	user := &User{ID: "u1", Email: "a@example.com"}
	env := newTestEnv(t, false, user)

	_, err := env.service.AddCard(context.Background(), user, "", "")
	assert.ErrorIs(t, err, ErrPaymentMethodRequired)

	id, err := env.service.AddCard(context.Background(), user, "", "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Equal(t, "cus_new", env.store.get("u1").Billing.CustomerID)
	assert.Empty(t, user.Billing.CustomerID, "caller's user must not be mutated")

	id, err = env.service.AddCard(context.Background(), user, "cus_new", "pm_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Equal(t, 1, env.client.called("AttachPaymentMethod"))
}

func TestSetupIntent(t *testing.T) {
	env := newTestEnv(t, false)

	intent, err := env.service.SetupIntent(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.ClientSecret, "seti_1_secret"))
}

func TestCancelAndResume(t *testing.T) {
	user := &User{ID: "u1", Plan: "pro", Billing: BillingRecord{CustomerID: "cus_1", SubscriptionID: "sub_1"}}
	env := newTestEnv(t, false, user)
	env.client.subscriptions["sub_1"] = &Subscription{ID: "sub_1", CustomerID: "cus_1", Status: SubscriptionActive}

	updated, err := env.service.Cancel(context.Background(), "sub_1", user)
	require.NoError(t, err)
	assert.True(t, updated.Billing.Canceled)
	assert.True(t, env.store.get("u1").Billing.Canceled)
	assert.Equal(t, "pro", env.store.get("u1").Plan, "plan stays until the period ends")
	assert.True(t, env.client.subscriptions["sub_1"].CancelAtPeriodEnd)

	updated, err = env.service.Resume(context.Background(), "sub_1", updated)
	require.NoError(t, err)
	assert.False(t, updated.Billing.Canceled)
	assert.False(t, env.store.get("u1").Billing.Canceled)
	assert.False(t, env.client.subscriptions["sub_1"].CancelAtPeriodEnd)
}

func TestCancel_NoSubscription(t *testing.T) {
	user := &User{ID: "u1"}
	env := newTestEnv(t, false, user)

	_, err := env.service.Cancel(context.Background(), "", user)
	if !errors.Is(err, ErrNoSubscription) {
		t.Errorf("error = %v, want ErrNoSubscription", err)
	}
	if env.client.called("SetCancelAtPeriodEnd") != 0 {
		t.Error("no provider call expected")
	}
}

func TestTestCoupon(t *testing.T) {
	env := newTestEnv(t, false)

	got := env.service.TestCoupon("WINTER10")
	if !got.Valid || got.Description != "10% off" {
		t.Errorf("TestCoupon(WINTER10) = %+v", got)
	}
	if got := env.service.TestCoupon("SUMMER"); got.Valid || got.Description != "" {
		t.Errorf("TestCoupon(SUMMER) = %+v, want invalid", got)
	}
	if got := env.service.TestCoupon(""); got.Valid {
		t.Error("empty code must be invalid")
	}
}

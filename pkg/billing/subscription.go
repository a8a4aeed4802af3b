package billing

import (
	"context"
	"errors"
	"fmt"
)

// ClientAction names the client-side flow that completes an authentication step.
type ClientAction string

const (
	// ActionCardSetup confirms a new payment method.
	ActionCardSetup ClientAction = "handleCardSetup"
	// ActionCardPayment confirms a payment.
	ActionCardPayment ClientAction = "handleCardPayment"
)

// UpgradeRequest describes a plan change requested by a user.
type UpgradeRequest struct {
	User *User

	// CustomerID and SubscriptionID are the user's current provider ids, if any.
	CustomerID     string
	SubscriptionID string

	PlanID     string
	CouponCode string

	// PaymentMethodID is a payment method freshly collected on the client.
	PaymentMethodID string
}

// UpgradeResult is the outcome of a successful Upgrade call.
// When ActionRequired is set nothing was committed locally yet.
type UpgradeResult struct {
	ActionRequired ClientAction `json:"actionRequired,omitempty"`
	Secret         string       `json:"secret,omitempty"`

	User         *User         `json:"-"`
	Subscription *Subscription `json:"-"`
}

// NeedsAction reports whether the client must authenticate before the upgrade completes.
func (r *UpgradeResult) NeedsAction() bool {
	return r.ActionRequired != ""
}

// Upgrade moves a user to a plan, creating a customer and a subscription when needed.
// On success the plan is committed locally, the listener is notified and a
// confirmation email is sent before Upgrade returns.
func (s *Service) Upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeResult, error) {
	result, err := s.upgrade(ctx, req)
	switch {
	case err != nil:
		s.metrics.RecordSubscriptionOperation("upgrade", "error")
	case result.NeedsAction():
		s.metrics.RecordSubscriptionOperation("upgrade", "action_required")
	default:
		s.metrics.RecordSubscriptionOperation("upgrade", "success")
	}
	return result, err
}

func (s *Service) upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeResult, error) {
	if req.User == nil {
		return nil, ErrLoginRequired
	}
	if req.CustomerID == "" && req.PaymentMethodID == "" {
		return nil, ErrCardRequired
	}

	plan, ok := s.catalog.Plan(req.PlanID)
	if !ok || plan.ProviderPlanID == "" {
		return nil, ErrInvalidPlan
	}

	user := req.User.Clone()
	customerID := req.CustomerID

	if req.PaymentMethodID != "" {
		var err error
		customerID, err = s.addCard(ctx, user, customerID, req.PaymentMethodID)
		if err != nil {
			return nil, err
		}
	}

	couponCode := ""
	if coupon, ok := s.catalog.Coupon(req.CouponCode); ok {
		couponCode = coupon.Code
	}

	var sub *Subscription
	if req.SubscriptionID != "" {
		current, err := s.client.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscription: %w", err)
		}
		if len(current.Items) == 0 {
			return nil, fmt.Errorf("subscription %s has no items", current.ID)
		}
		sub, err = s.client.UpdateSubscription(ctx, current.ID, SubscriptionParams{
			ItemID:     current.Items[0].ID,
			PriceID:    plan.ProviderPlanID,
			CouponCode: couponCode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update subscription: %w", err)
		}
	} else {
		var err error
		sub, err = s.client.CreateSubscription(ctx, SubscriptionParams{
			CustomerID:      customerID,
			PriceID:         plan.ProviderPlanID,
			CouponCode:      couponCode,
			TrialFromPlan:   true,
			AllowIncomplete: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
	}

	if sub.Status == SubscriptionIncomplete {
		action, err := pendingAction(sub)
		if err != nil {
			s.logger.Warn("subscription incomplete",
				Field{"user_id", user.ID},
				Field{"subscription_id", sub.ID},
				Field{"error", err.Error()},
			)
			return nil, err
		}
		if action != nil {
			s.logger.Info("subscription requires authentication",
				Field{"user_id", user.ID},
				Field{"subscription_id", sub.ID},
				Field{"action", string(action.ActionRequired)},
			)
			action.User = user
			action.Subscription = sub
			return action, nil
		}
	}

	if err := s.commitPlan(ctx, user, plan, sub); err != nil {
		return nil, err
	}
	return &UpgradeResult{User: user, Subscription: sub}, nil
}

// pendingAction inspects an incomplete subscription. A nil result with a nil
// error means the intent is already progressing and the upgrade can be committed.
func pendingAction(sub *Subscription) (*UpgradeResult, error) {
	var (
		intent *Intent
		action ClientAction
	)
	switch {
	case sub.PendingSetupIntent != nil:
		intent, action = sub.PendingSetupIntent, ActionCardSetup
	case sub.PaymentIntent != nil:
		intent, action = sub.PaymentIntent, ActionCardPayment
	default:
		return nil, ErrTransactionIncomplete
	}

	switch intent.Status {
	case IntentRequiresAction:
		return &UpgradeResult{ActionRequired: action, Secret: intent.ClientSecret}, nil
	case IntentRequiresPaymentMethod:
		return nil, ErrTryAnotherCard
	case IntentSucceeded, IntentProcessing:
		return nil, nil
	default:
		return nil, ErrTransactionIncomplete
	}
}

// commitPlan records a live subscription on the user and notifies about it.
func (s *Service) commitPlan(ctx context.Context, user *User, plan Plan, sub *Subscription) error {
	previous := user.Plan

	user.Plan = plan.ID
	user.Billing.SubscriptionID = sub.ID
	user.Billing.SubscriptionItems = sub.ItemIDs()
	user.Billing.Canceled = sub.CancelAtPeriodEnd
	if sub.CustomerID != "" {
		user.Billing.CustomerID = sub.CustomerID
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if previous != plan.ID {
		s.metrics.RecordPlanChange(previous, plan.ID)
	}
	s.logger.Info("plan committed",
		Field{"user_id", user.ID},
		Field{"plan", plan.ID},
		Field{"previous_plan", previous},
		Field{"subscription_id", sub.ID},
	)

	s.listener.OnUpgrade(ctx, user, plan.ID)
	s.notify(ctx, UpgradeMail(plan.Name), user.Email)
	return nil
}

// AddCard attaches a payment method to the user's customer, creating the customer
// when the user has none. It returns the customer id.
func (s *Service) AddCard(ctx context.Context, user *User, customerID, paymentMethodID string) (string, error) {
	if user == nil {
		return "", ErrLoginRequired
	}
	id, err := s.addCard(ctx, user.Clone(), customerID, paymentMethodID)
	if err != nil {
		s.metrics.RecordSubscriptionOperation("add_card", "error")
		return "", err
	}
	s.metrics.RecordSubscriptionOperation("add_card", "success")
	return id, nil
}

// addCard mutates user when a customer is created.
func (s *Service) addCard(ctx context.Context, user *User, customerID, paymentMethodID string) (string, error) {
	if paymentMethodID == "" {
		return "", ErrPaymentMethodRequired
	}

	if customerID != "" {
		if err := s.client.AttachPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
			s.logger.Warn("failed to attach payment method",
				Field{"user_id", user.ID},
				Field{"customer_id", customerID},
				Field{"error", err.Error()},
			)
			return "", fmt.Errorf("%w (%v)", ErrCardDeclined, err)
		}
		return customerID, nil
	}

	customer, err := s.client.CreateCustomer(ctx, user.Email, paymentMethodID)
	if err != nil {
		s.logger.Warn("failed to create customer",
			Field{"user_id", user.ID},
			Field{"error", err.Error()},
		)
		return "", fmt.Errorf("%w (%v)", ErrCardDeclined, err)
	}

	user.Billing.CustomerID = customer.ID
	if err := s.store.SaveUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to save customer id: %w", err)
	}
	s.logger.Info("customer created",
		Field{"user_id", user.ID},
		Field{"customer_id", customer.ID},
	)
	return customer.ID, nil
}

// SetupIntent starts collecting a payment method for later off-session use.
func (s *Service) SetupIntent(ctx context.Context, customerID string) (*Intent, error) {
	intent, err := s.client.CreateSetupIntent(ctx, customerID)
	if err != nil {
		s.metrics.RecordSubscriptionOperation("setup_intent", "error")
		return nil, fmt.Errorf("failed to create setup intent: %w", err)
	}
	s.metrics.RecordSubscriptionOperation("setup_intent", "success")
	return intent, nil
}

// Cancel schedules the subscription to end with the current period and flags the
// user as canceled. The plan stays in effect until the provider deletes the subscription.
func (s *Service) Cancel(ctx context.Context, subscriptionID string, user *User) (*User, error) {
	return s.setCancelAtPeriodEnd(ctx, "cancel", subscriptionID, user, true)
}

// Resume undoes Cancel.
func (s *Service) Resume(ctx context.Context, subscriptionID string, user *User) (*User, error) {
	return s.setCancelAtPeriodEnd(ctx, "resume", subscriptionID, user, false)
}

func (s *Service) setCancelAtPeriodEnd(ctx context.Context, op, subscriptionID string, user *User, cancel bool) (*User, error) {
	updated, err := func() (*User, error) {
		if user == nil {
			return nil, ErrLoginRequired
		}
		if subscriptionID == "" {
			return nil, ErrNoSubscription
		}
		if _, err := s.client.SetCancelAtPeriodEnd(ctx, subscriptionID, cancel); err != nil {
			return nil, fmt.Errorf("failed to %s subscription: %w", op, err)
		}
		updated := user.Clone()
		updated.Billing.Canceled = cancel
		if err := s.store.SaveUser(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to save user: %w", err)
		}
		return updated, nil
	}()
	if err != nil {
		if !errors.Is(err, ErrNoSubscription) {
			s.logger.Error("subscription "+op+" failed",
				Field{"subscription_id", subscriptionID},
				Field{"error", err.Error()},
			)
		}
		s.metrics.RecordSubscriptionOperation(op, "error")
		return nil, err
	}
	s.logger.Info("subscription "+op,
		Field{"user_id", updated.ID},
		Field{"subscription_id", subscriptionID},
	)
	s.metrics.RecordSubscriptionOperation(op, "success")
	return updated, nil
}

package billing

import (
	"context"
	"errors"
	"fmt"
)

// HandleEvent reconciles local state with a provider event. The event is fetched
// from the provider by id, so only ids the provider knows about have any effect.
// Handlers are safe to re-apply when the provider redelivers an event.
func (s *Service) HandleEvent(ctx context.Context, eventID string) (*Event, error) {
	if eventID == "" {
		return nil, ErrInvalidWebhookPayload
	}

	event, err := s.client.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve event %s: %w", eventID, err)
	}

	s.logger.Info("billing event received",
		Field{"event_id", event.ID},
		Field{"event_type", event.Type},
	)

	switch event.Kind() {
	case EventTrialWillEnd:
		err = s.handleTrialWillEnd(ctx, event)
	case EventSourceExpiring, EventInvoicePaymentFailed:
		// The provider emails the customer itself.
		s.logger.Info("billing event left to provider",
			Field{"event_type", event.Type},
			Field{"customer_id", event.CustomerID},
		)
	case EventSubscriptionUpdated:
		err = s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		err = s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logger.Debug("ignoring billing event", Field{"event_type", event.Type})
	}
	if err != nil {
		return event, fmt.Errorf("failed to handle %s: %w", event.Type, err)
	}
	return event, nil
}

// eventUser returns the local user of the event's customer, or nil when there is none.
func (s *Service) eventUser(ctx context.Context, event *Event) (*User, error) {
	customerID := event.CustomerID
	if customerID == "" && event.Subscription != nil {
		customerID = event.Subscription.CustomerID
	}
	if customerID == "" {
		s.logger.Warn("billing event without customer",
			Field{"event_id", event.ID},
			Field{"event_type", event.Type},
		)
		return nil, nil
	}

	user, err := s.store.GetUserByCustomerID(ctx, customerID)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.Warn("no user for customer",
			Field{"event_id", event.ID},
			Field{"customer_id", customerID},
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) handleTrialWillEnd(ctx context.Context, event *Event) error {
	user, err := s.eventUser(ctx, event)
	if err != nil || user == nil {
		return err
	}
	s.listener.OnTrialWillEnd(ctx, user, event.Subscription)
	return nil
}

// handleSubscriptionUpdated commits subscriptions that became live outside of a
// synchronous upgrade, e.g. after the client confirmed an authentication step.
// Events may arrive late or out of order, so the subscription carried by the
// event only names what to look at: the state committed is the one the
// provider reports now.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	if event.Subscription == nil || event.Subscription.ID == "" {
		return ErrInvalidWebhookPayload
	}

	user, err := s.eventUser(ctx, event)
	if err != nil || user == nil {
		return err
	}

	subscriptionID := event.Subscription.ID
	if current := user.Billing.SubscriptionID; current != "" && current != subscriptionID {
		s.logger.Info("ignoring update of a replaced subscription",
			Field{"user_id", user.ID},
			Field{"subscription_id", subscriptionID},
			Field{"current_subscription_id", current},
		)
		return nil
	}

	sub, err := s.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.Status.Live() {
		s.logger.Debug("subscription not live",
			Field{"subscription_id", sub.ID},
			Field{"status", string(sub.Status)},
		)
		return nil
	}

	plan, ok := s.catalog.PlanByProviderID(sub.PriceID())
	if !ok {
		s.logger.Warn("subscription price not in catalog",
			Field{"subscription_id", sub.ID},
			Field{"price_id", sub.PriceID()},
		)
		return nil
	}

	if user.Plan == plan.ID && user.Billing.SubscriptionID == sub.ID {
		if user.Billing.Canceled == sub.CancelAtPeriodEnd {
			return nil
		}
		updated := user.Clone()
		updated.Billing.Canceled = sub.CancelAtPeriodEnd
		return s.store.SaveUser(ctx, updated)
	}

	s.logger.Info("activating subscription",
		Field{"user_id", user.ID},
		Field{"subscription_id", sub.ID},
		Field{"previous_status", string(event.PreviousStatus)},
	)
	return s.commitPlan(ctx, user.Clone(), plan, sub)
}

// handleSubscriptionDeleted moves the user back to the free plan. The reset is
// always saved; the hook and the email only fire when it changed the record.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	user, err := s.eventUser(ctx, event)
	if err != nil || user == nil {
		return err
	}

	if sub := event.Subscription; sub != nil && sub.ID != "" &&
		user.Billing.SubscriptionID != "" && user.Billing.SubscriptionID != sub.ID {
		s.logger.Info("ignoring deletion of a replaced subscription",
			Field{"user_id", user.ID},
			Field{"subscription_id", sub.ID},
			Field{"current_subscription_id", user.Billing.SubscriptionID},
		)
		return nil
	}

	updated := user.Clone()
	if updated.Plan != "" {
		updated.Plan = FreePlanID
	}
	updated.Billing.SubscriptionID = ""
	updated.Billing.SubscriptionItems = []string{}
	updated.Billing.Canceled = false

	if err := s.store.SaveUser(ctx, updated); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if updated.Equal(user) {
		s.logger.Debug("subscription already removed", Field{"user_id", user.ID})
		return nil
	}

	if user.Plan != updated.Plan {
		s.metrics.RecordPlanChange(user.Plan, updated.Plan)
	}
	s.logger.Info("subscription canceled",
		Field{"user_id", updated.ID},
		Field{"previous_plan", user.Plan},
	)

	s.listener.OnCancel(ctx, updated)
	s.notify(ctx, CancelMail(s.siteName, s.cancelMailExtra), updated.Email)
	return nil
}

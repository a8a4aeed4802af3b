package billing

import (
	"context"
	"net/http"
)

// Client is the contract the billing core expects from a provider adapter.
// Implementations perform one remote call per method and never retry.
type Client interface {
	// GetCustomer fetches a customer. Returns ErrCustomerNotFound for deleted or unknown customers.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// CreateCustomer creates a customer with paymentMethodID attached as its default.
	CreateCustomer(ctx context.Context, email, paymentMethodID string) (*Customer, error)

	// AttachPaymentMethod attaches paymentMethodID to an existing customer.
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	// ListCards lists the card payment methods of a customer.
	ListCards(ctx context.Context, customerID string) ([]PaymentSource, error)

	// ListSubscriptions lists the subscriptions of a customer.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// GetSubscription fetches a subscription by id.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CreateSubscription creates a subscription. The returned subscription carries
	// its pending setup intent and latest payment intent, if any.
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)

	// UpdateSubscription replaces the price of one subscription item.
	UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionParams) (*Subscription, error)

	// SetCancelAtPeriodEnd toggles end-of-period cancellation.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)

	// ListInvoices returns at most limit invoices, most recent first.
	ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)

	// UpcomingInvoice returns the draft of the next invoice, or ErrNoUpcomingInvoice.
	UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error)

	// CreateSetupIntent starts an off-session payment method setup.
	// customerID may be empty for users who have never been billed.
	CreateSetupIntent(ctx context.Context, customerID string) (*Intent, error)

	// GetEvent fetches an event by id from the provider.
	GetEvent(ctx context.Context, eventID string) (*Event, error)
}

// SubscriptionParams describes a subscription create or update call.
type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	// ItemID is the item whose price is replaced on update.
	ItemID     string
	CouponCode string

	// TrialFromPlan and AllowIncomplete only apply on create.
	TrialFromPlan   bool
	AllowIncomplete bool
}

// WebhookVerifier authenticates an inbound webhook payload.
type WebhookVerifier interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// VerifyWebhook checks the payload signature and returns the event id it carries.
	// Returns ErrInvalidWebhookSignature or ErrInvalidWebhookPayload.
	VerifyWebhook(payload []byte, header http.Header) (string, error)
}

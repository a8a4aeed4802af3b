package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// GetCustomer implements billing.Client.
func (p *Provider) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	start := time.Now()
	params := &stripe.CustomerRetrieveParams{}
	params.AddExpand("invoice_settings.default_payment_method")

	cust, err := p.client.V1Customers.Retrieve(ctx, customerID, params)
	p.track("/v1/customers/{id}", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, wrapError("retrieve customer", err)
	}
	if cust.Deleted {
		return nil, billing.ErrCustomerNotFound
	}
	return convertCustomer(cust), nil
}

// CreateCustomer implements billing.Client.
func (p *Provider) CreateCustomer(ctx context.Context, email, paymentMethodID string) (*billing.Customer, error) {
	start := time.Now()
	params := &stripe.CustomerCreateParams{
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerCreateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}

	cust, err := p.client.V1Customers.Create(ctx, params)
	p.track("/v1/customers", start, err)
	if err != nil {
		return nil, wrapError("create customer", err)
	}
	return convertCustomer(cust), nil
}

// AttachPaymentMethod implements billing.Client.
func (p *Provider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	start := time.Now()
	_, err := p.client.V1PaymentMethods.Attach(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	p.track("/v1/payment_methods/{id}/attach", start, err)
	if err != nil {
		return wrapError("attach payment method", err)
	}
	return nil
}

// ListCards implements billing.Client.
func (p *Provider) ListCards(ctx context.Context, customerID string) ([]billing.PaymentSource, error) {
	start := time.Now()
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}

	var cards []billing.PaymentSource
	for pm, err := range p.client.V1PaymentMethods.List(ctx, params) {
		if err != nil {
			p.track("/v1/payment_methods", start, err)
			return nil, wrapError("list payment methods", err)
		}
		cards = append(cards, convertPaymentMethod(pm))
	}
	p.track("/v1/payment_methods", start, nil)
	return cards, nil
}

// ListSubscriptions implements billing.Client.
func (p *Provider) ListSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	start := time.Now()
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
	}
	params.AddExpand("data.discounts")

	var subs []billing.Subscription
	for sub, err := range p.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.track("/v1/subscriptions", start, err)
			return nil, wrapError("list subscriptions", err)
		}
		converted := convertSubscription(sub)
		if err := p.resolveDiscount(ctx, sub, converted); err != nil {
			return nil, err
		}
		subs = append(subs, *converted)
	}
	p.track("/v1/subscriptions", start, nil)
	return subs, nil
}

// GetSubscription implements billing.Client.
func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	start := time.Now()
	sub, err := p.client.V1Subscriptions.Retrieve(ctx, subscriptionID, &stripe.SubscriptionRetrieveParams{})
	p.track("/v1/subscriptions/{id}", start, err)
	if err != nil {
		return nil, wrapError("retrieve subscription", err)
	}
	return convertSubscription(sub), nil
}

// CreateSubscription implements billing.Client.
func (p *Provider) CreateSubscription(ctx context.Context, params billing.SubscriptionParams) (*billing.Subscription, error) {
	start := time.Now()
	sp := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(params.PriceID)},
		},
	}
	if params.TrialFromPlan {
		sp.TrialFromPlan = stripe.Bool(true)
	}
	if params.AllowIncomplete {
		sp.PaymentBehavior = stripe.String("allow_incomplete")
	}
	if params.CouponCode != "" {
		sp.Discounts = []*stripe.SubscriptionCreateDiscountParams{
			{Coupon: stripe.String(params.CouponCode)},
		}
	}
	sp.AddExpand("latest_invoice.payments")
	sp.AddExpand("pending_setup_intent")

	sub, err := p.client.V1Subscriptions.Create(ctx, sp)
	p.track("/v1/subscriptions", start, err)
	if err != nil {
		return nil, wrapError("create subscription", err)
	}
	return p.withPaymentIntent(ctx, sub)
}

// UpdateSubscription implements billing.Client.
func (p *Provider) UpdateSubscription(ctx context.Context, subscriptionID string, params billing.SubscriptionParams) (*billing.Subscription, error) {
	start := time.Now()
	sp := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(params.ItemID),
				Price: stripe.String(params.PriceID),
			},
		},
	}
	if params.CouponCode != "" {
		sp.Discounts = []*stripe.SubscriptionUpdateDiscountParams{
			{Coupon: stripe.String(params.CouponCode)},
		}
	}
	sp.AddExpand("latest_invoice.payments")
	sp.AddExpand("pending_setup_intent")

	sub, err := p.client.V1Subscriptions.Update(ctx, subscriptionID, sp)
	p.track("/v1/subscriptions/{id}", start, err)
	if err != nil {
		return nil, wrapError("update subscription", err)
	}
	return p.withPaymentIntent(ctx, sub)
}

// SetCancelAtPeriodEnd implements billing.Client.
func (p *Provider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
	start := time.Now()
	sub, err := p.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	p.track("/v1/subscriptions/{id}", start, err)
	if err != nil {
		return nil, wrapError("update subscription", err)
	}
	return convertSubscription(sub), nil
}

// ListInvoices implements billing.Client.
func (p *Provider) ListInvoices(ctx context.Context, customerID string, limit int) ([]billing.Invoice, error) {
	start := time.Now()
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Limit = stripe.Int64(int64(limit))

	invoices := make([]billing.Invoice, 0, limit)
	for inv, err := range p.client.V1Invoices.List(ctx, params) {
		if err != nil {
			p.track("/v1/invoices", start, err)
			return nil, wrapError("list invoices", err)
		}
		invoices = append(invoices, convertInvoice(inv))
		if len(invoices) >= limit {
			break
		}
	}
	p.track("/v1/invoices", start, nil)
	return invoices, nil
}

// UpcomingInvoice implements billing.Client.
func (p *Provider) UpcomingInvoice(ctx context.Context, customerID string) (*billing.Invoice, error) {
	start := time.Now()
	inv, err := p.client.V1Invoices.CreatePreview(ctx, &stripe.InvoiceCreatePreviewParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && (serr.Code == "invoice_upcoming_none" || serr.HTTPStatusCode == 404) {
			p.track("/v1/invoices/create_preview", start, nil)
			return nil, billing.ErrNoUpcomingInvoice
		}
		p.track("/v1/invoices/create_preview", start, err)
		return nil, wrapError("preview invoice", err)
	}
	p.track("/v1/invoices/create_preview", start, nil)
	converted := convertInvoice(inv)
	return &converted, nil
}

// CreateSetupIntent implements billing.Client.
func (p *Provider) CreateSetupIntent(ctx context.Context, customerID string) (*billing.Intent, error) {
	start := time.Now()
	params := &stripe.SetupIntentCreateParams{
		Usage: stripe.String("off_session"),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}

	si, err := p.client.V1SetupIntents.Create(ctx, params)
	p.track("/v1/setup_intents", start, err)
	if err != nil {
		return nil, wrapError("create setup intent", err)
	}
	return convertSetupIntent(si), nil
}

// GetEvent implements billing.Client.
func (p *Provider) GetEvent(ctx context.Context, eventID string) (*billing.Event, error) {
	start := time.Now()
	ev, err := p.client.V1Events.Retrieve(ctx, eventID, &stripe.EventRetrieveParams{})
	p.track("/v1/events/{id}", start, err)
	if err != nil {
		return nil, wrapError("retrieve event", err)
	}
	return convertEvent(ev)
}

// withPaymentIntent converts sub and, for incomplete subscriptions, loads the
// payment intent of the latest invoice, which the invoice only references by id.
func (p *Provider) withPaymentIntent(ctx context.Context, sub *stripe.Subscription) (*billing.Subscription, error) {
	converted := convertSubscription(sub)
	if converted.Status != billing.SubscriptionIncomplete || converted.PendingSetupIntent != nil {
		return converted, nil
	}

	pi := latestPaymentIntent(sub)
	if pi == nil || pi.ID == "" {
		return converted, nil
	}
	if pi.Status == "" {
		start := time.Now()
		full, err := p.client.V1PaymentIntents.Retrieve(ctx, pi.ID, &stripe.PaymentIntentRetrieveParams{})
		p.track("/v1/payment_intents/{id}", start, err)
		if err != nil {
			return nil, wrapError("retrieve payment intent", err)
		}
		pi = full
	}
	converted.PaymentIntent = &billing.Intent{
		ID:           pi.ID,
		Status:       billing.IntentStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
	}
	return converted, nil
}

// resolveDiscount fills the discount of converted, fetching the coupon when the
// subscription only references it by id.
func (p *Provider) resolveDiscount(ctx context.Context, sub *stripe.Subscription, converted *billing.Subscription) error {
	if len(sub.Discounts) == 0 || sub.Discounts[0] == nil {
		return nil
	}
	coupon, err := decodeDiscountCoupon(sub.Discounts[0])
	if err != nil {
		return fmt.Errorf("decode discount: %w", err)
	}
	if coupon == nil {
		return nil
	}
	if !coupon.complete() && coupon.ID != "" {
		start := time.Now()
		full, err := p.client.V1Coupons.Retrieve(ctx, coupon.ID, &stripe.CouponRetrieveParams{})
		p.track("/v1/coupons/{id}", start, err)
		if err != nil {
			return wrapError("retrieve coupon", err)
		}
		coupon = couponFromStripe(full)
	}
	converted.Discount = coupon.discount()
	return nil
}

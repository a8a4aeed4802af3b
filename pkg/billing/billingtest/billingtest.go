// Package billingtest provides in-memory billing.Client and billing.WebhookVerifier
// implementations for tests.
package billingtest

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Client is an in-memory billing.Client that records the calls made to it.
// Customers and cards are canned; subscriptions and events are read from the maps.
type Client struct {
	mu sync.Mutex

	Subscriptions map[string]*billing.Subscription
	Events        map[string]*billing.Event

	// NextSubscription is returned by CreateSubscription when set.
	NextSubscription *billing.Subscription
	AttachErr        error
	EventErr         error

	calls []string
}

var (
	_ billing.Client          = (*Client)(nil)
	_ billing.WebhookVerifier = Verifier{}
)

// NewClient returns an empty Client.
func NewClient() *Client {
	return &Client{
		Subscriptions: make(map[string]*billing.Subscription),
		Events:        make(map[string]*billing.Event),
	}
}

func (f *Client) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Called returns how many times the named method was invoked.
func (f *Client) Called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *Client) GetCustomer(_ context.Context, customerID string) (*billing.Customer, error) {
	f.record("GetCustomer")
	return &billing.Customer{ID: customerID, DefaultSourceID: "pm_1"}, nil
}

func (f *Client) CreateCustomer(_ context.Context, email, paymentMethodID string) (*billing.Customer, error) {
	f.record("CreateCustomer")
	return &billing.Customer{ID: "cus_new", Email: email, DefaultSourceID: paymentMethodID}, nil
}

func (f *Client) AttachPaymentMethod(context.Context, string, string) error {
	f.record("AttachPaymentMethod")
	return f.AttachErr
}

func (f *Client) ListCards(context.Context, string) ([]billing.PaymentSource, error) {
	f.record("ListCards")
	return []billing.PaymentSource{{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}}, nil
}

func (f *Client) ListSubscriptions(_ context.Context, customerID string) ([]billing.Subscription, error) {
	f.record("ListSubscriptions")
	f.mu.Lock()
	defer f.mu.Unlock()
	var subs []billing.Subscription
	for _, s := range f.Subscriptions {
		if s.CustomerID == customerID {
			subs = append(subs, *s)
		}
	}
	return subs, nil
}

func (f *Client) GetSubscription(_ context.Context, subscriptionID string) (*billing.Subscription, error) {
	f.record("GetSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (f *Client) CreateSubscription(_ context.Context, params billing.SubscriptionParams) (*billing.Subscription, error) {
	f.record("CreateSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.NextSubscription
	if sub == nil {
		sub = &billing.Subscription{
			ID:         "sub_new",
			CustomerID: params.CustomerID,
			Status:     billing.SubscriptionActive,
			Items:      []billing.SubscriptionItem{{ID: "si_new", PriceID: params.PriceID}},
		}
	}
	f.Subscriptions[sub.ID] = sub
	return sub, nil
}

func (f *Client) UpdateSubscription(_ context.Context, subscriptionID string, params billing.SubscriptionParams) (*billing.Subscription, error) {
	f.record("UpdateSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.Subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	updated := *sub
	updated.Items = []billing.SubscriptionItem{{ID: params.ItemID, PriceID: params.PriceID}}
	f.Subscriptions[subscriptionID] = &updated
	return &updated, nil
}

func (f *Client) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
	f.record("SetCancelAtPeriodEnd")
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.Subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.CancelAtPeriodEnd = cancel
	return sub, nil
}

func (f *Client) ListInvoices(context.Context, string, int) ([]billing.Invoice, error) {
	f.record("ListInvoices")
	return nil, nil
}

func (f *Client) UpcomingInvoice(context.Context, string) (*billing.Invoice, error) {
	f.record("UpcomingInvoice")
	return nil, billing.ErrNoUpcomingInvoice
}

func (f *Client) CreateSetupIntent(context.Context, string) (*billing.Intent, error) {
	f.record("CreateSetupIntent")
	return &billing.Intent{ID: "seti_1", Status: billing.IntentRequiresPaymentMethod, ClientSecret: "seti_1_secret"}, nil
}

func (f *Client) GetEvent(_ context.Context, eventID string) (*billing.Event, error) {
	f.record("GetEvent")
	if f.EventErr != nil {
		return nil, f.EventErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[eventID]
	if !ok {
		return nil, errors.New("no such event")
	}
	return ev, nil
}

// SignatureHeader is the header Verifier checks.
const SignatureHeader = "Stripe-Signature"

// ValidSignature is the only signature Verifier accepts.
const ValidSignature = "ok"

// Verifier accepts payloads signed with ValidSignature and returns the body as event id.
type Verifier struct{}

// Name implements billing.WebhookVerifier.
func (Verifier) Name() string { return "fake" }

// VerifyWebhook implements billing.WebhookVerifier.
func (Verifier) VerifyWebhook(payload []byte, header http.Header) (string, error) {
	if header.Get(SignatureHeader) != ValidSignature {
		return "", billing.ErrInvalidWebhookSignature
	}
	if len(payload) == 0 {
		return "", billing.ErrInvalidWebhookPayload
	}
	return string(payload), nil
}

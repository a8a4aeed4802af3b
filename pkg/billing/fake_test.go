package billing

import (
	"context"
	"errors"
	"sync"
)

// fakeClient is an in-memory Client that records the calls made to it.
type fakeClient struct {
	mu sync.Mutex

	customers     map[string]*Customer
	cards         map[string][]PaymentSource
	subscriptions map[string]*Subscription
	invoices      map[string][]Invoice
	upcoming      map[string]*Invoice
	events        map[string]*Event

	// nextSubscription is returned by CreateSubscription and UpdateSubscription when set.
	nextSubscription *Subscription

	attachErr error
	createErr error
	listErr   error

	calls        []string
	lastParams   SubscriptionParams
	nextCustomer int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		customers:     make(map[string]*Customer),
		cards:         make(map[string][]PaymentSource),
		subscriptions: make(map[string]*Subscription),
		invoices:      make(map[string][]Invoice),
		upcoming:      make(map[string]*Invoice),
		events:        make(map[string]*Event),
	}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) called(call string) int {
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

func (f *fakeClient) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	f.record("GetCustomer")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeClient) CreateCustomer(_ context.Context, email, paymentMethodID string) (*Customer, error) {
	f.record("CreateCustomer")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCustomer++
	c := &Customer{ID: "cus_new", Email: email, DefaultSourceID: paymentMethodID}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeClient) AttachPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.record("AttachPaymentMethod")
	if f.attachErr != nil {
		return f.attachErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[customerID] = append(f.cards[customerID], PaymentSource{ID: paymentMethodID})
	return nil
}

func (f *fakeClient) ListCards(_ context.Context, customerID string) ([]PaymentSource, error) {
	f.record("ListCards")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PaymentSource(nil), f.cards[customerID]...), nil
}

func (f *fakeClient) ListSubscriptions(_ context.Context, customerID string) ([]Subscription, error) {
	f.record("ListSubscriptions")
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var subs []Subscription
	for _, s := range f.subscriptions {
		if s.CustomerID == customerID {
			subs = append(subs, *s)
		}
	}
	return subs, nil
}

func (f *fakeClient) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	f.record("GetSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (f *fakeClient) CreateSubscription(_ context.Context, params SubscriptionParams) (*Subscription, error) {
	f.record("CreateSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastParams = params
	sub := f.nextSubscription
	if sub == nil {
		sub = &Subscription{
			ID:         "sub_new",
			CustomerID: params.CustomerID,
			Status:     SubscriptionActive,
			Items:      []SubscriptionItem{{ID: "si_new", PriceID: params.PriceID}},
			Price:      &Price{ID: params.PriceID},
		}
	}
	f.subscriptions[sub.ID] = sub
	return sub, nil
}

func (f *fakeClient) UpdateSubscription(_ context.Context, subscriptionID string, params SubscriptionParams) (*Subscription, error) {
	f.record("UpdateSubscription")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastParams = params
	if f.nextSubscription != nil {
		return f.nextSubscription, nil
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	updated := *sub
	updated.Items = []SubscriptionItem{{ID: params.ItemID, PriceID: params.PriceID}}
	updated.Price = &Price{ID: params.PriceID}
	f.subscriptions[subscriptionID] = &updated
	return &updated, nil
}

func (f *fakeClient) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	f.record("SetCancelAtPeriodEnd")
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.CancelAtPeriodEnd = cancel
	return sub, nil
}

func (f *fakeClient) ListInvoices(_ context.Context, customerID string, limit int) ([]Invoice, error) {
	f.record("ListInvoices")
	f.mu.Lock()
	defer f.mu.Unlock()
	invoices := f.invoices[customerID]
	if len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return append([]Invoice(nil), invoices...), nil
}

func (f *fakeClient) UpcomingInvoice(_ context.Context, customerID string) (*Invoice, error) {
	f.record("UpcomingInvoice")
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.upcoming[customerID]
	if !ok {
		return nil, ErrNoUpcomingInvoice
	}
	return inv, nil
}

func (f *fakeClient) CreateSetupIntent(_ context.Context, customerID string) (*Intent, error) {
	f.record("CreateSetupIntent")
	return &Intent{ID: "seti_1", ClientSecret: "seti_1_secret_" + customerID}, nil
}

func (f *fakeClient) GetEvent(_ context.Context, eventID string) (*Event, error) {
	f.record("GetEvent")
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	if !ok {
		return nil, errors.New("no such event")
	}
	return e, nil
}

// fakeStore keeps users in a map.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*User
	saves int
}

func newFakeStore(users ...*User) *fakeStore {
	s := &fakeStore{users: make(map[string]*User)}
	for _, u := range users {
		s.users[u.ID] = u.Clone()
	}
	return s
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *fakeStore) GetUserByCustomerID(_ context.Context, customerID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Billing.CustomerID == customerID {
			return u.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) SaveUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.users[user.ID] = user.Clone()
	return nil
}

func (s *fakeStore) get(userID string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Clone()
}

type sentMail struct {
	Subject, Body, Recipient string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) SendMail(_ context.Context, subject, body, recipient string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{subject, body, recipient})
	return nil
}

type recordingListener struct {
	upgrades []string
	cancels  []string
	trials   []string
}

func (l *recordingListener) OnUpgrade(_ context.Context, user *User, planID string) {
	l.upgrades = append(l.upgrades, user.ID+":"+planID)
}

func (l *recordingListener) OnCancel(_ context.Context, user *User) {
	l.cancels = append(l.cancels, user.ID)
}

func (l *recordingListener) OnTrialWillEnd(_ context.Context, user *User, _ *Subscription) {
	l.trials = append(l.trials, user.ID)
}

var testCatalog = Catalog{
	Plans: []Plan{
		{ID: "free", Name: "Free"},
		{ID: "pro", ProviderPlanID: "plan_pro", Name: "Pro", Price: "$9/month"},
		{ID: "team", ProviderPlanID: "plan_team", Name: "Team", Price: "$29/month"},
	},
	Coupons: []Coupon{
		{Code: "WINTER10", Description: "10% off", PercentOff: 10, DurationInMonths: 3},
	},
}

type testEnv struct {
	service  *Service
	client   *fakeClient
	store    *fakeStore
	notifier *recordingNotifier
	listener *recordingListener
}

func newTestEnv(t interface{ Fatalf(string, ...interface{}) }, showDraft bool, users ...*User) *testEnv {
	env := &testEnv{
		client:   newFakeClient(),
		store:    newFakeStore(users...),
		notifier: &recordingNotifier{},
		listener: &recordingListener{},
	}
	catalog := testCatalog
	svc, err := NewService(Config{
		Client:           env.client,
		Store:            env.store,
		Catalog:          &catalog,
		SiteName:         "Acme",
		ShowDraftInvoice: showDraft,
		CancelMailExtra:  "Your data is kept for 30 days.",
		Listener:         env.listener,
		Notifier:         env.notifier,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.service = svc
	return env
}

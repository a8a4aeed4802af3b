package billing

import "time"

// FreePlanID is the reserved plan id users fall back to when their subscription ends.
// It is never offered as an upgrade.
const FreePlanID = "free"

// User is the local account record the billing layer reads and mutates.
type User struct {
	ID      string        `json:"id" bson:"_id" firestore:"id"`
	Email   string        `json:"email" bson:"email" firestore:"email"`
	Plan    string        `json:"plan,omitempty" bson:"plan,omitempty" firestore:"plan"`
	Billing BillingRecord `json:"billing" bson:"stripe" firestore:"billing"`
}

// BillingRecord is the provider state embedded in a User.
type BillingRecord struct {
	CustomerID        string   `json:"customer_id,omitempty" bson:"customerId,omitempty" firestore:"customer_id"`
	SubscriptionID    string   `json:"subscription_id,omitempty" bson:"subscriptionId,omitempty" firestore:"subscription_id"`
	SubscriptionItems []string `json:"subscription_items,omitempty" bson:"subscriptionItems" firestore:"subscription_items"`
	Canceled          bool     `json:"canceled" bson:"canceled" firestore:"canceled"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Billing.SubscriptionItems != nil {
		c.Billing.SubscriptionItems = append([]string(nil), u.Billing.SubscriptionItems...)
	}
	return &c
}

// Equal reports whether two users hold the same state.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	if u.ID != other.ID || u.Email != other.Email || u.Plan != other.Plan {
		return false
	}
	a, b := u.Billing, other.Billing
	if a.CustomerID != b.CustomerID || a.SubscriptionID != b.SubscriptionID || a.Canceled != b.Canceled {
		return false
	}
	if len(a.SubscriptionItems) != len(b.SubscriptionItems) {
		return false
	}
	for i := range a.SubscriptionItems {
		if a.SubscriptionItems[i] != b.SubscriptionItems[i] {
			return false
		}
	}
	return true
}

// Plan is a catalog entry users can subscribe to.
type Plan struct {
	ID             string `json:"id" yaml:"id" validate:"required"`
	ProviderPlanID string `json:"provider_plan_id" yaml:"provider_plan_id" validate:"required_unless=ID free"`
	Name           string `json:"name" yaml:"name" validate:"required"`
	Price          string `json:"price" yaml:"price"`
}

// Subscribable reports whether the plan can be offered in a plan picker: it is
// backed by a provider price and is not the free fallback.
func (p Plan) Subscribable() bool {
	return p.ID != FreePlanID && p.ProviderPlanID != ""
}

// Coupon is a catalog discount code, forwarded to the provider by code.
type Coupon struct {
	Code             string  `json:"code" yaml:"code" validate:"required"`
	Description      string  `json:"description" yaml:"description"`
	PercentOff       float64 `json:"percent_off,omitempty" yaml:"percent_off" validate:"gte=0,lte=100"`
	AmountOff        int64   `json:"amount_off,omitempty" yaml:"amount_off" validate:"gte=0"`
	DurationInMonths int64   `json:"duration_in_months,omitempty" yaml:"duration_in_months" validate:"gte=0"`
}

// Customer is the provider-side payer identity.
type Customer struct {
	ID              string
	Email           string
	DefaultSourceID string
}

// PaymentSource is a card attached to a customer.
type PaymentSource struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int64  `json:"exp_month"`
	ExpYear   int64  `json:"exp_year"`
	IsDefault bool   `json:"is_default"`
}

// SubscriptionStatus mirrors the provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
)

// Live reports whether the subscription currently grants its plan.
func (s SubscriptionStatus) Live() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Price is the recurring price attached to a subscription.
type Price struct {
	ID       string
	Nickname string
	Amount   int64 // minor units
	Currency string
	Interval string
}

// Discount is the coupon applied to a subscription.
type Discount struct {
	Name             string
	PercentOff       float64
	AmountOff        int64
	Currency         string
	DurationInMonths int64
}

// SubscriptionItem is a single line of a subscription.
type SubscriptionItem struct {
	ID      string
	PriceID string
}

// IntentStatus is the state of a payment or setup intent.
type IntentStatus string

const (
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
)

// Intent is a setup or payment intent that may need client-side confirmation.
type Intent struct {
	ID           string
	Status       IntentStatus
	ClientSecret string
}

// Subscription is the provider-side recurring agreement.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Items              []SubscriptionItem
	Price              *Price
	Discount           *Discount
	CancelAtPeriodEnd  bool

	// PendingSetupIntent is set when a new payment method needs authentication.
	PendingSetupIntent *Intent
	// PaymentIntent is the latest invoice's payment intent, if any.
	PaymentIntent *Intent
}

// ItemIDs returns the ids of the subscription items in order.
func (s *Subscription) ItemIDs() []string {
	ids := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// PriceID returns the price of the first item, which is the subscribed plan.
func (s *Subscription) PriceID() string {
	if s.Price != nil && s.Price.ID != "" {
		return s.Price.ID
	}
	if len(s.Items) > 0 {
		return s.Items[0].PriceID
	}
	return ""
}

// Invoice is a provider invoice, finalized or upcoming.
type Invoice struct {
	ID           string
	AmountDue    int64 // minor units
	Currency     string
	Paid         bool
	AttemptCount int64
	Created      time.Time
	Lines        []InvoiceLine
}

// InvoiceLine carries the billed period of one invoice line.
type InvoiceLine struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
}

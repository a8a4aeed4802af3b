package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

func convertCustomer(c *stripe.Customer) *billing.Customer {
	out := &billing.Customer{
		ID:    c.ID,
		Email: c.Email,
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultSourceID = c.InvoiceSettings.DefaultPaymentMethod.ID
	} else if c.DefaultSource != nil {
		out.DefaultSourceID = c.DefaultSource.ID
	}
	return out
}

func convertPaymentMethod(pm *stripe.PaymentMethod) billing.PaymentSource {
	out := billing.PaymentSource{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}

// convertSubscription maps a subscription. The billing period and the price live
// on the first item.
func convertSubscription(s *stripe.Subscription) *billing.Subscription {
	out := &billing.Subscription{
		ID:                s.ID,
		Status:            billing.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}

	if s.Items != nil {
		for i, item := range s.Items.Data {
			if item == nil {
				continue
			}
			converted := billing.SubscriptionItem{ID: item.ID}
			if item.Price != nil {
				converted.PriceID = item.Price.ID
			}
			out.Items = append(out.Items, converted)

			if i == 0 {
				out.CurrentPeriodStart = unix(item.CurrentPeriodStart)
				out.CurrentPeriodEnd = unix(item.CurrentPeriodEnd)
				if item.Price != nil {
					out.Price = convertPrice(item.Price)
				}
			}
		}
	}

	if s.PendingSetupIntent != nil && s.PendingSetupIntent.ID != "" {
		out.PendingSetupIntent = convertSetupIntent(s.PendingSetupIntent)
	}
	if pi := latestPaymentIntent(s); pi != nil && pi.Status != "" {
		out.PaymentIntent = &billing.Intent{
			ID:           pi.ID,
			Status:       billing.IntentStatus(pi.Status),
			ClientSecret: pi.ClientSecret,
		}
	}
	if len(s.Discounts) > 0 && s.Discounts[0] != nil {
		if coupon, err := decodeDiscountCoupon(s.Discounts[0]); err == nil && coupon != nil && coupon.complete() {
			out.Discount = coupon.discount()
		}
	}
	return out
}

func convertPrice(p *stripe.Price) *billing.Price {
	out := &billing.Price{
		ID:       p.ID,
		Nickname: p.Nickname,
		Amount:   p.UnitAmount,
		Currency: string(p.Currency),
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

// latestPaymentIntent returns the payment intent of the latest invoice's first payment.
func latestPaymentIntent(s *stripe.Subscription) *stripe.PaymentIntent {
	inv := s.LatestInvoice
	if inv == nil || inv.Payments == nil {
		return nil
	}
	for _, payment := range inv.Payments.Data {
		if payment != nil && payment.Payment != nil && payment.Payment.PaymentIntent != nil {
			return payment.Payment.PaymentIntent
		}
	}
	return nil
}

func convertSetupIntent(si *stripe.SetupIntent) *billing.Intent {
	return &billing.Intent{
		ID:           si.ID,
		Status:       billing.IntentStatus(si.Status),
		ClientSecret: si.ClientSecret,
	}
}

func convertInvoice(inv *stripe.Invoice) billing.Invoice {
	out := billing.Invoice{
		ID:           inv.ID,
		AmountDue:    inv.AmountDue,
		Currency:     string(inv.Currency),
		Paid:         inv.Status == stripe.InvoiceStatusPaid,
		AttemptCount: inv.AttemptCount,
		Created:      unix(inv.Created),
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil || line.Period == nil {
				continue
			}
			out.Lines = append(out.Lines, billing.InvoiceLine{
				PeriodStart: unix(line.Period.Start),
				PeriodEnd:   unix(line.Period.End),
			})
		}
	}
	return out
}

// stripeCoupon is the subset of a coupon the billing view needs. Discounts carry
// it either directly or under source depending on the API version.
type stripeCoupon struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	PercentOff       float64 `json:"percent_off"`
	AmountOff        int64   `json:"amount_off"`
	Currency         string  `json:"currency"`
	DurationInMonths int64   `json:"duration_in_months"`
}

type stripeDiscount struct {
	Coupon json.RawMessage `json:"coupon"`
	Source *struct {
		Coupon json.RawMessage `json:"coupon"`
	} `json:"source"`
}

func (c *stripeCoupon) complete() bool {
	return c.PercentOff > 0 || c.AmountOff > 0
}

func (c *stripeCoupon) discount() *billing.Discount {
	return &billing.Discount{
		Name:             c.Name,
		PercentOff:       c.PercentOff,
		AmountOff:        c.AmountOff,
		Currency:         c.Currency,
		DurationInMonths: c.DurationInMonths,
	}
}

func couponFromStripe(c *stripe.Coupon) *stripeCoupon {
	return &stripeCoupon{
		ID:               c.ID,
		Name:             c.Name,
		PercentOff:       c.PercentOff,
		AmountOff:        c.AmountOff,
		Currency:         string(c.Currency),
		DurationInMonths: c.DurationInMonths,
	}
}

// decodeDiscountCoupon extracts the coupon of a discount. A coupon that is only
// referenced by id comes back with just its ID set.
func decodeDiscountCoupon(d *stripe.Discount) (*stripeCoupon, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var sd stripeDiscount
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, err
	}

	data := sd.Coupon
	if isEmptyJSON(data) && sd.Source != nil {
		data = sd.Source.Coupon
	}
	if isEmptyJSON(data) {
		return nil, nil
	}

	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return &stripeCoupon{ID: id}, nil
	}
	var c stripeCoupon
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unexpected coupon: %w", err)
	}
	return &c, nil
}

func isEmptyJSON(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}

// convertEvent maps an event. Subscription events carry the subscription and,
// for updates, its previous status.
func convertEvent(ev *stripe.Event) (*billing.Event, error) {
	out := &billing.Event{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Created: unix(ev.Created),
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}

	var object struct {
		Object   string          `json:"object"`
		Customer json.RawMessage `json:"customer"`
	}
	if err := json.Unmarshal(ev.Data.Raw, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	out.CustomerID = customerID(object.Customer)

	if object.Object == "subscription" {
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal subscription: %v", billing.ErrInvalidWebhookPayload, err)
		}
		out.Subscription = convertSubscription(&sub)
		if out.CustomerID == "" {
			out.CustomerID = out.Subscription.CustomerID
		}
	}

	if status, ok := ev.Data.PreviousAttributes["status"].(string); ok {
		out.PreviousStatus = billing.SubscriptionStatus(status)
	}
	return out, nil
}

// customerID reads a customer reference that is either an id or an expanded object.
func customerID(raw json.RawMessage) string {
	if isEmptyJSON(raw) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

package billing

import (
	"context"
	"errors"
	"fmt"
)

// recentInvoices is how many finalized invoices a snapshot shows.
const recentInvoices = 5

// Snapshot is the display-ready billing state of one user.
type Snapshot struct {
	Sources         []PaymentSource    `json:"sources"`
	Invoices        []InvoiceView      `json:"invoices"`
	Subscriptions   []SubscriptionView `json:"subscriptions"`
	UpgradablePlans []Plan             `json:"upgradable_plans"`
	User            *User              `json:"user"`
	Options         SnapshotOptions    `json:"options"`
}

// SnapshotOptions echoes the configuration a view needs.
type SnapshotOptions struct {
	SiteName         string `json:"site_name"`
	ShowDraftInvoice bool   `json:"show_draft_invoice"`
	Plans            []Plan `json:"plans"`
}

// SubscriptionView is a subscription enriched for display.
type SubscriptionView struct {
	ID                  string             `json:"id"`
	Status              SubscriptionStatus `json:"status"`
	CurrentPeriodStart  string             `json:"current_period_start"`
	CurrentPeriodEnd    string             `json:"current_period_end"`
	PlanID              string             `json:"plan_id,omitempty"`
	PlanName            string             `json:"plan_name,omitempty"`
	Amount              string             `json:"amount,omitempty"`
	Interval            string             `json:"interval,omitempty"`
	DiscountDescription string             `json:"discount_description,omitempty"`
	CancelAtPeriodEnd   bool               `json:"cancel_at_period_end"`
}

// InvoiceView is an invoice enriched for display.
type InvoiceView struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Paid        bool   `json:"paid"`
	Unpaid      bool   `json:"unpaid"`
	Draft       bool   `json:"draft"`
}

// Snapshot assembles the billing view of user. An empty customerID means the user
// has never been billed: nothing is fetched and every plan is offered.
// Any provider failure aborts the snapshot, except a missing upcoming invoice.
func (s *Service) Snapshot(ctx context.Context, customerID string, user *User) (*Snapshot, error) {
	snap := &Snapshot{
		Sources:       []PaymentSource{},
		Invoices:      []InvoiceView{},
		Subscriptions: []SubscriptionView{},
		User:          user,
		Options: SnapshotOptions{
			SiteName:         s.siteName,
			ShowDraftInvoice: s.showDraftInvoice,
			Plans:            s.catalog.Plans,
		},
	}

	if customerID == "" {
		snap.UpgradablePlans = append([]Plan{}, s.catalog.Plans...)
		return snap, nil
	}

	customer, err := s.client.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	cards, err := s.client.ListCards(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	subs, err := s.client.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	invoices, err := s.client.ListInvoices(ctx, customerID, recentInvoices)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	var upcoming *Invoice
	if s.showDraftInvoice {
		upcoming, err = s.client.UpcomingInvoice(ctx, customerID)
		if err != nil {
			if !errors.Is(err, ErrNoUpcomingInvoice) {
				s.logger.Debug("upcoming invoice unavailable",
					Field{"customer_id", customerID},
					Field{"error", err.Error()},
				)
			}
			upcoming = nil
		}
	}

	for _, card := range cards {
		card.IsDefault = customer.DefaultSourceID != "" && card.ID == customer.DefaultSourceID
		snap.Sources = append(snap.Sources, card)
	}

	for i := range subs {
		snap.Subscriptions = append(snap.Subscriptions, s.subscriptionView(&subs[i]))
	}

	if upcoming != nil {
		if view, ok := s.invoiceView(upcoming); ok {
			view.Draft = true
			snap.Invoices = append(snap.Invoices, view)
		}
	}
	for i := range invoices {
		if view, ok := s.invoiceView(&invoices[i]); ok {
			snap.Invoices = append(snap.Invoices, view)
		}
	}

	currentPlan := ""
	if user != nil {
		currentPlan = user.Plan
	}
	snap.UpgradablePlans = s.catalog.Upgradable(currentPlan)

	return snap, nil
}

func (s *Service) subscriptionView(sub *Subscription) SubscriptionView {
	view := SubscriptionView{
		ID:                 sub.ID,
		Status:             sub.Status,
		CurrentPeriodStart: FormatDate(sub.CurrentPeriodStart, s.location),
		CurrentPeriodEnd:   FormatDate(sub.CurrentPeriodEnd, s.location),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Price != nil {
		view.Amount = FormatAmount(sub.Price.Amount, sub.Price.Currency)
		view.Interval = sub.Price.Interval
		view.PlanName = sub.Price.Nickname
		if plan, ok := s.catalog.PlanByProviderID(sub.Price.ID); ok {
			view.PlanID = plan.ID
			view.PlanName = plan.Name
		}
	}
	if sub.Discount != nil {
		view.DiscountDescription = DescribeDiscount(sub.Discount)
	}
	return view
}

// invoiceView drops invoices with nothing due.
func (s *Service) invoiceView(inv *Invoice) (InvoiceView, bool) {
	if inv.AmountDue <= 0 {
		return InvoiceView{}, false
	}
	view := InvoiceView{
		ID:     inv.ID,
		Amount: FormatAmount(inv.AmountDue, inv.Currency),
		Date:   FormatDate(inv.Created, s.location),
		Paid:   inv.Paid,
		Unpaid: inv.AttemptCount > 1 && !inv.Paid,
	}
	// The invoice-level period is wrong for the first invoice of a subscription.
	if len(inv.Lines) > 0 {
		view.PeriodStart = FormatDate(inv.Lines[0].PeriodStart, s.location)
		view.PeriodEnd = FormatDate(inv.Lines[0].PeriodEnd, s.location)
	}
	return view, true
}

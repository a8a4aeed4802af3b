package billing

import "time"

// EventKind enumerates the provider events the reconciler knows about.
type EventKind int

const (
	// EventUnknown is any event the reconciler does not act on.
	EventUnknown EventKind = iota
	EventTrialWillEnd
	EventSourceExpiring
	EventInvoicePaymentFailed
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

var eventKindNames = map[EventKind]string{
	EventTrialWillEnd:         "customer.subscription.trial_will_end",
	EventSourceExpiring:       "customer.source.expiring",
	EventInvoicePaymentFailed: "invoice.payment_failed",
	EventSubscriptionUpdated:  "customer.subscription.updated",
	EventSubscriptionDeleted:  "customer.subscription.deleted",
}

// ParseEventKind maps a provider event type to its kind.
func ParseEventKind(eventType string) EventKind {
	for kind, name := range eventKindNames {
		if name == eventType {
			return kind
		}
	}
	return EventUnknown
}

// String returns the provider event type of the kind.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a provider event notification.
type Event struct {
	ID      string
	Type    string
	Created time.Time

	// CustomerID is the customer the event object belongs to, if any.
	CustomerID string

	// Subscription is set for customer.subscription.* events.
	Subscription *Subscription

	// PreviousStatus is the subscription status before an update, when the provider reports it.
	PreviousStatus SubscriptionStatus
}

// Kind returns the parsed event type.
func (e *Event) Kind() EventKind {
	return ParseEventKind(e.Type)
}

package billing

// Field is one key/value pair attached to a billing log entry, such as
// "user_id", "customer_id" or "event_type".
type Field struct {
	Key   string
	Value interface{}
}

// Logger receives the Service's structured logs: webhook events as they are
// reconciled, plan commits, cancellations and provider failures that were
// swallowed. The Stripe adapter routes stripe-go's own logs through it too.
// See billing/logger/zerolog for a zerolog implementation.
type Logger interface {
	// Debug is used for events that change nothing, e.g. ignored event types.
	Debug(msg string, fields ...Field)

	// Info is used for state changes: customers created, plans committed, subscriptions canceled.
	Info(msg string, fields ...Field)

	// Warn is used for provider refusals and events that cannot be matched to a user.
	Warn(msg string, fields ...Field)

	// Error is used for failures surfaced to the caller as internal errors.
	Error(msg string, fields ...Field)
}

// NoopLogger discards everything. It is the default when Config.Logger is nil.
type NoopLogger struct{}

func (n *NoopLogger) Debug(string, ...Field) {}
func (n *NoopLogger) Info(string, ...Field)  {}
func (n *NoopLogger) Warn(string, ...Field)  {}
func (n *NoopLogger) Error(string, ...Field) {}

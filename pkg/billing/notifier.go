package billing

import (
	"context"
	"fmt"
	"strings"
)

// Notifier sends transactional email.
type Notifier interface {
	// SendMail delivers one plain-text message. Failures are logged by the Service, never returned to users.
	SendMail(ctx context.Context, subject, body, recipient string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, subject, body, recipient string) error

// SendMail calls f.
func (f NotifierFunc) SendMail(ctx context.Context, subject, body, recipient string) error {
	return f(ctx, subject, body, recipient)
}

// NoopNotifier drops every message.
type NoopNotifier struct{}

// SendMail discards the message.
func (NoopNotifier) SendMail(context.Context, string, string, string) error { return nil }

// Mail is a rendered email.
type Mail struct {
	Subject string
	Body    string
}

// UpgradeMail is sent after a plan is committed.
func UpgradeMail(planName string) Mail {
	return Mail{
		Subject: "Thank you for upgrading",
		Body: fmt.Sprintf("Hello,\n\n"+
			"This is a confirmation email that you have successfully upgraded your account to the %s plan.\n\n"+
			"If you have any question or suggestion, simply reply to this email.\n\n"+
			"Glad to have you on board :)", planName),
	}
}

// CancelMail is sent after a subscription is deleted.
func CancelMail(siteName, extra string) Mail {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "This is an automatic email to inform that your %s subscription was canceled.\n", siteName)
	if extra != "" {
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\nWe hope to see you back soon!")
	return Mail{
		Subject: fmt.Sprintf("Subscription canceled - %s", siteName),
		Body:    b.String(),
	}
}

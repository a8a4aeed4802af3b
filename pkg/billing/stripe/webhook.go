package stripe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

const signatureHeader = "Stripe-Signature"

// HasWebhookSecret reports whether inbound webhooks can be verified.
func (p *Provider) HasWebhookSecret() bool {
	return p.webhookSecret != ""
}

// VerifyWebhook checks the Stripe-Signature header of payload and returns the event id.
// The event content is not trusted beyond its id: the reconciler fetches the event again.
func (p *Provider) VerifyWebhook(payload []byte, header http.Header) (string, error) {
	if p.webhookSecret == "" {
		return "", billing.ErrProviderNotConfigured
	}

	sig := header.Get(signatureHeader)
	if sig == "" {
		return "", fmt.Errorf("%w: missing %s header", billing.ErrInvalidWebhookSignature, signatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.webhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return "", fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
		}
		return "", fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}

	if event.ID == "" {
		return "", fmt.Errorf("%w: event without id", billing.ErrInvalidWebhookPayload)
	}
	return event.ID, nil
}

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

const (
	defaultBasePath           = "/billing"
	defaultAccountURL         = "/account#billing"
	defaultMaxWebhookBodySize = 256 * 1024
	defaultMaxRequestBodySize = 64 * 1024
	defaultWebhookRateLimit   = 100
	defaultWebhookRateWindow  = time.Minute
)

// Config holds configuration for the billing HTTP handler
type Config struct {
	// Service runs the billing operations (required)
	Service *billing.Service

	// GetUserID extracts the authenticated user id from a request (required).
	// See FromHeader, FromContext, FromJWT and FromSession.
	GetUserID func(*http.Request) string

	// Verifier authenticates webhook payloads. Without it the webhook route answers 503.
	Verifier billing.WebhookVerifier

	// BasePath is where the handler is mounted. Used for links and Mount. Default: "/billing"
	BasePath string

	// AccountURL is where cancel and resume redirect to. Default: "/account#billing"
	AccountURL string

	// ChoosePlanRedirect is passed to the plan picker page as the post-upgrade destination.
	ChoosePlanRedirect string

	// StripePublishableKey is exposed to the dashboard for Stripe.js. Optional.
	StripePublishableKey string

	// MaxWebhookBodySize limits webhook payloads. Default: 256KB
	MaxWebhookBodySize int64

	// WebhookRateLimit is the number of webhook calls allowed per client IP and
	// WebhookRateWindow. Default: 100 per minute
	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	// Logger is an optional structured logger.
	Logger billing.Logger

	// Metrics is an optional metrics collector for webhook handling.
	Metrics billing.Metrics
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Service == nil {
		return fmt.Errorf("service is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path must start with /: %q", c.BasePath)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.BasePath = strings.TrimRight(c.BasePath, "/")
	if c.BasePath == "" {
		c.BasePath = defaultBasePath
	}
	if c.AccountURL == "" {
		c.AccountURL = defaultAccountURL
	}
	if c.MaxWebhookBodySize <= 0 {
		c.MaxWebhookBodySize = defaultMaxWebhookBodySize
	}
	if c.WebhookRateLimit <= 0 {
		c.WebhookRateLimit = defaultWebhookRateLimit
	}
	if c.WebhookRateWindow <= 0 {
		c.WebhookRateWindow = defaultWebhookRateWindow
	}
	if c.Logger == nil {
		c.Logger = &billing.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &billing.NoopMetrics{}
	}
}

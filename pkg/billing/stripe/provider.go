// Package stripe implements billing.Client and billing.WebhookVerifier on top of stripe-go.
package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

const (
	providerName       = "stripe"
	defaultHTTPTimeout = 10 * time.Second
)

// Config holds the Stripe adapter settings.
type Config struct {
	// APIKey is the Stripe secret key (required).
	APIKey string

	// WebhookSecret is the endpoint signing secret ("whsec_..."). Without it
	// VerifyWebhook rejects every payload.
	WebhookSecret string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// BackendURL overrides the Stripe API base URL (stripe-mock, tests).
	BackendURL string

	// WebhookTolerance is the maximum accepted signature age. Defaults to 5 minutes.
	WebhookTolerance time.Duration

	// Logger receives adapter and stripe-go logs. Optional.
	Logger billing.Logger

	// Metrics is an optional metrics collector for API calls.
	Metrics billing.Metrics
}

// Provider talks to the Stripe API. It is safe for concurrent use.
type Provider struct {
	client           *stripe.Client
	webhookSecret    string
	webhookTolerance time.Duration
	logger           billing.Logger
	metrics          billing.Metrics
}

var (
	_ billing.Client          = (*Provider)(nil)
	_ billing.WebhookVerifier = (*Provider)(nil)
)

// NewProvider creates a Stripe adapter. The underlying client never retries.
func NewProvider(config Config) (*Provider, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	tolerance := config.WebhookTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     &leveledLogger{logger: logger},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(config.BackendURL, "/"))
	}

	client := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)))

	return &Provider{
		client:           client,
		webhookSecret:    strings.TrimSpace(config.WebhookSecret),
		webhookTolerance: tolerance,
		logger:           logger,
		metrics:          metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// track records the outcome of one API call.
func (p *Provider) track(endpoint string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		p.logger.Warn("stripe api call failed",
			billing.Field{Key: "endpoint", Value: endpoint},
			billing.Field{Key: "error", Value: err.Error()},
		)
	}
	p.metrics.RecordAPICall(providerName, endpoint, status)
	p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
}

// wrapError tags Stripe API errors with billing.ErrProviderAPIError.
func wrapError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return fmt.Errorf("%s: %w: %s", op, billing.ErrProviderAPIError, serr.Msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound
}

// leveledLogger routes stripe-go logs to a billing.Logger.
type leveledLogger struct {
	logger billing.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), billing.Field{Key: "component", Value: "stripe-go"})
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), billing.Field{Key: "component", Value: "stripe-go"})
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), billing.Field{Key: "component", Value: "stripe-go"})
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), billing.Field{Key: "component", Value: "stripe-go"})
}

func unix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

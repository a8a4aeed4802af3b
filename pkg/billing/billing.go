// Package billing bridges local user accounts with a subscription billing provider.
//
// A Service renders billing snapshots, upgrades, cancels and resumes subscriptions,
// and reconciles local users with provider webhooks. The provider, the user store and
// the mailer are injected through Config.
package billing

import (
	"context"
	"time"
)

// Service implements the billing operations on top of a provider Client and a UserStore.
type Service struct {
	client   Client
	store    UserStore
	catalog  *Catalog
	listener Listener
	notifier Notifier
	logger   Logger
	metrics  Metrics

	siteName         string
	showDraftInvoice bool
	cancelMailExtra  string
	location         *time.Location
}

// NewService creates a Service from config.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	listener := config.Listener
	if listener == nil {
		listener = NoopListener{}
	}
	notifier := config.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	location := config.Location
	if location == nil {
		location = time.UTC
	}

	return &Service{
		client:           config.Client,
		store:            config.Store,
		catalog:          config.catalog(),
		listener:         listener,
		notifier:         notifier,
		logger:           logger,
		metrics:          metrics,
		siteName:         config.SiteName,
		showDraftInvoice: config.ShowDraftInvoice,
		cancelMailExtra:  config.CancelMailExtra,
		location:         location,
	}, nil
}

// Catalog returns the plans and coupons offered by the service.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// SiteName returns the configured site name.
func (s *Service) SiteName() string {
	return s.siteName
}

// User loads a user from the store.
func (s *Service) User(ctx context.Context, userID string) (*User, error) {
	return s.store.GetUser(ctx, userID)
}

// CouponCheck is the outcome of TestCoupon.
type CouponCheck struct {
	Valid       bool   `json:"valid"`
	Description string `json:"description,omitempty"`
}

// TestCoupon reports whether code matches a configured coupon.
func (s *Service) TestCoupon(code string) CouponCheck {
	coupon, ok := s.catalog.Coupon(code)
	if !ok {
		return CouponCheck{Valid: false}
	}
	return CouponCheck{Valid: true, Description: coupon.Description}
}

func (s *Service) notify(ctx context.Context, mail Mail, recipient string) {
	if recipient == "" {
		s.logger.Warn("skipping email without recipient", Field{"subject", mail.Subject})
		return
	}
	if err := s.notifier.SendMail(ctx, mail.Subject, mail.Body, recipient); err != nil {
		s.logger.Error("failed to send email",
			Field{"subject", mail.Subject},
			Field{"recipient", recipient},
			Field{"error", err.Error()},
		)
	}
}

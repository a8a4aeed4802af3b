package billing

import (
	"fmt"
	"time"
)

// Config holds the settings of a billing Service.
type Config struct {
	// Client is the provider adapter (required).
	// Construct it once at startup; it is shared by every request.
	Client Client

	// Store persists local users (required).
	Store UserStore

	// Catalog lists the plans and coupons offered to users.
	// Plans and Coupons below are appended to it.
	Catalog *Catalog
	Plans   []Plan
	Coupons []Coupon

	// SiteName is used in email subjects and bodies.
	SiteName string

	// ShowDraftInvoice prepends the upcoming invoice to billing snapshots.
	ShowDraftInvoice bool

	// CancelMailExtra is an optional paragraph appended to cancellation emails.
	CancelMailExtra string

	// Location is used to format dates. Defaults to UTC.
	Location *time.Location

	// Listener receives upgrade, cancel and trial notifications. Optional.
	Listener Listener

	// Notifier sends emails. If nil, emails are dropped.
	Notifier Notifier

	// Logger is an optional structured logger.
	Logger Logger

	// Metrics is an optional metrics collector.
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Client == nil {
		return ErrProviderNotConfigured
	}
	if c.Store == nil {
		return ErrStoreNotConfigured
	}
	catalog := c.catalog()
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) catalog() *Catalog {
	merged := &Catalog{}
	if c.Catalog != nil {
		merged.Plans = append(merged.Plans, c.Catalog.Plans...)
		merged.Coupons = append(merged.Coupons, c.Catalog.Coupons...)
	}
	merged.Plans = append(merged.Plans, c.Plans...)
	merged.Coupons = append(merged.Coupons, c.Coupons...)
	return merged
}

package billing

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog is the ordered set of plans and coupons offered to users.
type Catalog struct {
	Plans   []Plan   `yaml:"plans" validate:"dive"`
	Coupons []Coupon `yaml:"coupons" validate:"dive"`
}

var catalogValidator = validator.New()

// LoadCatalog reads a YAML catalog file.
//
//	plans:
//	  - id: pro
//	    provider_plan_id: price_123
//	    name: Pro
//	    price: $9/month
//	coupons:
//	  - code: WINTER10
//	    description: 10% off
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and rejects duplicate plan ids and coupon codes.
func (c *Catalog) Validate() error {
	if err := catalogValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Plans))
	for _, p := range c.Plans {
		if seen[p.ID] {
			return fmt.Errorf("invalid catalog: duplicate plan %q", p.ID)
		}
		seen[p.ID] = true
	}
	codes := make(map[string]bool, len(c.Coupons))
	for _, cp := range c.Coupons {
		if codes[cp.Code] {
			return fmt.Errorf("invalid catalog: duplicate coupon %q", cp.Code)
		}
		codes[cp.Code] = true
	}
	return nil
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanByProviderID returns the plan mapped to a provider price id.
func (c *Catalog) PlanByProviderID(providerPlanID string) (Plan, bool) {
	if providerPlanID == "" {
		return Plan{}, false
	}
	for _, p := range c.Plans {
		if p.ProviderPlanID == providerPlanID {
			return p, true
		}
	}
	return Plan{}, false
}

// Coupon returns the coupon with the given code. Matching is exact.
func (c *Catalog) Coupon(code string) (Coupon, bool) {
	if code == "" {
		return Coupon{}, false
	}
	for _, cp := range c.Coupons {
		if cp.Code == code {
			return cp, true
		}
	}
	return Coupon{}, false
}

// Upgradable returns the plans a user on currentPlan can move to.
// The free plan is never offered.
func (c *Catalog) Upgradable(currentPlan string) []Plan {
	plans := make([]Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		if p.ID == currentPlan || p.ID == FreePlanID {
			continue
		}
		plans = append(plans, p)
	}
	return plans
}

package api

// UpgradeRequest is the body of POST /upgrade.
// PaymentMethodID supersedes the legacy Token field.
type UpgradeRequest struct {
	Token           string `json:"token" validate:"omitempty,max=255"`
	PaymentMethodID string `json:"paymentMethodId" validate:"omitempty,max=255"`
	UpgradePlan     string `json:"upgradePlan" validate:"omitempty,max=255"`
	Coupon          string `json:"coupon" validate:"omitempty,max=255"`
}

func (r *UpgradeRequest) paymentMethod() string {
	if r.PaymentMethodID != "" {
		return r.PaymentMethodID
	}
	return r.Token
}

// CardRequest is the body of POST /card.
type CardRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"omitempty,max=255"`
}

// SetupIntentResponse is returned by GET /setupintent.
type SetupIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// WebhookResponse acknowledges a processed webhook.
type WebhookResponse struct {
	Received bool `json:"received"`
}

package billing

import "errors"

// User-facing errors. The messages are shown to the end user as-is.
var (
	// ErrCardRequired is returned when an upgrade is attempted without a customer or payment method
	ErrCardRequired = errors.New("Sorry! We need a credit card to subscribe you.")

	// ErrCardDeclined is returned when the provider refuses to attach a payment method or create a customer
	ErrCardDeclined = errors.New("Sorry, we couldn't process your credit card. Please check with your bank.")

	// ErrInvalidPlan is returned when the requested plan is not in the catalog
	ErrInvalidPlan = errors.New("Invalid plan.")

	// ErrTransactionIncomplete is returned when an incomplete subscription carries no intent to confirm
	ErrTransactionIncomplete = errors.New("We couldn't complete the transaction.")

	// ErrTryAnotherCard is returned when the provider needs a different payment method
	ErrTryAnotherCard = errors.New("Please try with another card.")

	// ErrLoginRequired is returned when a billing route is hit without an authenticated user
	ErrLoginRequired = errors.New("Login required for billing.")

	// ErrNoSubscription is returned when cancel or resume is requested for a user without a subscription
	ErrNoSubscription = errors.New("You don't have an active subscription.")

	// ErrPaymentMethodRequired is returned when a card operation has no payment method id
	ErrPaymentMethodRequired = errors.New("A payment method is required.")

	// ErrPlanRequired is returned when a user's plan does not grant access to a gated feature
	ErrPlanRequired = errors.New("Your plan doesn't include this feature.")
)

// Internal errors.
var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrStoreNotConfigured is returned when no user store is configured
	ErrStoreNotConfigured = errors.New("user store not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrUserNotFound is returned when a user cannot be found in the user store
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUser is returned when a store is asked to save a user without an id
	ErrInvalidUser = errors.New("invalid user")

	// ErrCustomerNotFound is returned when a customer cannot be found in the provider
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrNoUpcomingInvoice is returned when the provider has no draft invoice for a customer
	ErrNoUpcomingInvoice = errors.New("no upcoming invoice")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")
)

// IsUserError reports whether err carries a message meant for the end user
// (bad input or a card problem) rather than an internal failure.
func IsUserError(err error) bool {
	return IsInputError(err) || IsCardError(err)
}

// IsInputError reports whether err was caused by the request itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrCardRequired) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrPaymentMethodRequired)
}

// IsCardError reports whether err is a payment method failure.
func IsCardError(err error) bool {
	return errors.Is(err, ErrCardDeclined) ||
		errors.Is(err, ErrTryAnotherCard) ||
		errors.Is(err, ErrTransactionIncomplete)
}

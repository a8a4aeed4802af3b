package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mihaimyh/gobilling/internal/httputil"
	"github.com/mihaimyh/gobilling/pkg/billing"
)

// ErrInvalidRequest is returned for request bodies that fail to decode or validate.
var ErrInvalidRequest = errors.New("Invalid request.")

const internalErrorMessage = "Internal server error"

// userErrors lists the sentinels whose text may be shown to the client.
var userErrors = []error{
	billing.ErrLoginRequired,
	billing.ErrCardRequired,
	billing.ErrCardDeclined,
	billing.ErrInvalidPlan,
	billing.ErrTransactionIncomplete,
	billing.ErrTryAnotherCard,
	billing.ErrNoSubscription,
	billing.ErrPaymentMethodRequired,
	billing.ErrInvalidWebhookSignature,
	billing.ErrInvalidWebhookPayload,
	billing.ErrProviderNotConfigured,
	httputil.ErrPayloadTooLarge,
	httputil.ErrEmptyBody,
	ErrInvalidRequest,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrLoginRequired):
		return http.StatusUnauthorized
	case billing.IsInputError(err),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, httputil.ErrEmptyBody),
		errors.Is(err, billing.ErrInvalidWebhookSignature),
		errors.Is(err, billing.ErrInvalidWebhookPayload):
		return http.StatusBadRequest
	case billing.IsCardError(err):
		return http.StatusPaymentRequired
	case errors.Is(err, httputil.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the sentinel text of err, never the wrapped detail.
func messageFor(err error) string {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return internalErrorMessage
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := loggerFrom(r.Context(), h.config.Logger)
	fields := []billing.Field{
		{Key: "status", Value: status},
		{Key: "error", Value: err.Error()},
	}
	if status >= http.StatusInternalServerError {
		logger.Error("billing request failed", fields...)
	} else {
		logger.Info("billing request rejected", fields...)
	}
	httputil.WriteError(w, status, messageFor(err))
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := httputil.ReadBody(w, r, defaultMaxRequestBodySize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Package http provides net/http middleware that gates routes on a user's billing plan
// and passes the authenticated user to the billing router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "billing:userID"
)

// WithUserID returns a copy of ctx carrying userID under UserIDKey.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// SetUserID stores the user resolved by getUserID in the request context so that
// api.FromContext(UserIDKey) finds it downstream.
func SetUserID(getUserID UserIDExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := getUserID(r); userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Config holds middleware configuration
type Config struct {
	// Service is the billing service used to load users (required)
	Service *billing.Service

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// Plans lists the plan ids granting access. Empty means any paid plan.
	Plans []string

	// UpgradeURL is returned to users whose plan is insufficient, e.g. "/billing/chooseplan".
	UpgradeURL string

	// OnPaymentRequired is called when the user's plan does not grant access
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(w http.ResponseWriter, r *http.Request, user *billing.User)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// PlanRequiredResponse is the default body of a 402 answer.
type PlanRequiredResponse struct {
	Error       string `json:"error"`
	CurrentPlan string `json:"current_plan,omitempty"`
	UpgradeURL  string `json:"upgrade_url,omitempty"`
}

// RequirePlan creates an HTTP middleware that only lets users on one of config.Plans through.
// The loaded user is stored in the request context under UserIDKey.
func RequirePlan(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)

			user, err := config.Service.RequirePlan(r.Context(), userID, config.Plans...)
			switch {
			case err == nil:
			case errors.Is(err, billing.ErrLoginRequired):
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeJSON(w, http.StatusUnauthorized, PlanRequiredResponse{Error: err.Error()})
				}
				return
			case errors.Is(err, billing.ErrPlanRequired):
				if config.OnPaymentRequired != nil {
					config.OnPaymentRequired(w, r, user)
				} else {
					writeJSON(w, http.StatusPaymentRequired, PlanRequiredResponse{
						Error:       err.Error(),
						CurrentPlan: user.Plan,
						UpgradeURL:  config.UpgradeURL,
					})
				}
				return
			default:
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID)))
		})
	}
}

// HandlerFunc creates an HTTP middleware that enforces plan access (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequirePlan(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

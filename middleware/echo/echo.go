// Package echo provides Echo middleware for plan gating and a helper to mount the billing router
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	httpmw "github.com/mihaimyh/gobilling/middleware/http"
	"github.com/mihaimyh/gobilling/pkg/api"
	"github.com/mihaimyh/gobilling/pkg/billing"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Service is the billing service used to load users (required)
	Service *billing.Service

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// Plans lists the plan ids granting access. Empty means any paid plan.
	Plans []string

	// UpgradeURL is returned to users whose plan is insufficient.
	UpgradeURL string

	// OnPaymentRequired is called when the user's plan does not grant access
	// If nil, returns 402 JSON with the current plan and UpgradeURL
	OnPaymentRequired func(c echo.Context, user *billing.User) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// UserKey is the echo context key RequirePlan stores the loaded *billing.User under.
const UserKey = "billing:user"

// RequirePlan creates an Echo middleware that only lets users on one of cfg.Plans through.
func RequirePlan(cfg Config) echo.MiddlewareFunc {
	if cfg.Service == nil {
		panic("gobilling/echo: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("gobilling/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := cfg.Service.RequirePlan(c.Request().Context(), cfg.GetUserID(c), cfg.Plans...)
			switch {
			case err == nil:
			case errors.Is(err, billing.ErrLoginRequired):
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
			case errors.Is(err, billing.ErrPlanRequired):
				if cfg.OnPaymentRequired != nil {
					return cfg.OnPaymentRequired(c, user)
				}
				return c.JSON(http.StatusPaymentRequired, httpmw.PlanRequiredResponse{
					Error:       err.Error(),
					CurrentPlan: user.Plan,
					UpgradeURL:  cfg.UpgradeURL,
				})
			default:
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			c.Set(UserKey, user)
			return next(c)
		}
	}
}

// Mount registers the billing router under h.BasePath(). When getUserID is not nil
// the user it resolves is handed to the router through the request context, so
// the handler should be configured with api.FromContext(httpmw.UserIDKey).
func Mount(e *echo.Echo, h *api.Handler, getUserID UserIDExtractor) {
	base := h.BasePath()
	stripped := http.StripPrefix(base, h)

	handle := func(c echo.Context) error {
		req := c.Request()
		if getUserID != nil {
			if userID := getUserID(c); userID != "" {
				req = req.WithContext(httpmw.WithUserID(req.Context(), userID))
			}
		}
		stripped.ServeHTTP(c.Response(), req)
		return nil
	}
	e.Any(base, handle)
	e.Any(base+"/*", handle)
}

// FromContext returns a UserIDExtractor that gets user ID from Echo context
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// CurrentUser returns the user stored by RequirePlan.
func CurrentUser(c echo.Context) (*billing.User, bool) {
	user, ok := c.Get(UserKey).(*billing.User)
	return user, ok
}

// Package gin provides Gin middleware for plan gating and a helper to mount the billing router
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	httpmw "github.com/mihaimyh/gobilling/middleware/http"
	"github.com/mihaimyh/gobilling/pkg/api"
	"github.com/mihaimyh/gobilling/pkg/billing"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

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
	OnPaymentRequired func(c *gongin.Context, user *billing.User)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// UserKey is the gin context key RequirePlan stores the loaded *billing.User under.
const UserKey = "billing:user"

// RequirePlan creates a Gin middleware that only lets users on one of cfg.Plans through.
func RequirePlan(cfg Config) gongin.HandlerFunc {
	if cfg.Service == nil {
		panic("gobilling/gin: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("gobilling/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		user, err := cfg.Service.RequirePlan(c.Request.Context(), cfg.GetUserID(c), cfg.Plans...)
		switch {
		case err == nil:
		case errors.Is(err, billing.ErrLoginRequired):
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": err.Error()})
			}
			c.Abort()
			return
		case errors.Is(err, billing.ErrPlanRequired):
			if cfg.OnPaymentRequired != nil {
				cfg.OnPaymentRequired(c, user)
			} else {
				c.JSON(http.StatusPaymentRequired, httpmw.PlanRequiredResponse{
					Error:       err.Error(),
					CurrentPlan: user.Plan,
					UpgradeURL:  cfg.UpgradeURL,
				})
			}
			c.Abort()
			return
		default:
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// Mount registers the billing router under h.BasePath(). When getUserID is not nil
// the user it resolves is handed to the router through the request context, so
// the handler should be configured with api.FromContext(httpmw.UserIDKey).
func Mount(r gongin.IRoutes, h *api.Handler, getUserID UserIDExtractor) {
	base := h.BasePath()
	stripped := http.StripPrefix(base, h)

	handle := func(c *gongin.Context) {
		req := c.Request
		if getUserID != nil {
			if userID := getUserID(c); userID != "" {
				req = req.WithContext(httpmw.WithUserID(req.Context(), userID))
			}
		}
		stripped.ServeHTTP(c.Writer, req)
	}
	r.Any(base+"/*path", handle)
}

// FromContext returns a UserIDExtractor that gets user ID from Gin context
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In billing config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// CurrentUser returns the user stored by RequirePlan.
func CurrentUser(c *gongin.Context) (*billing.User, bool) {
	val, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := val.(*billing.User)
	return user, ok
}

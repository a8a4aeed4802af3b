// Package fiber provides Fiber middleware for plan gating and a helper to mount the billing router
package fiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	httpmw "github.com/mihaimyh/gobilling/middleware/http"
	"github.com/mihaimyh/gobilling/pkg/api"
	"github.com/mihaimyh/gobilling/pkg/billing"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnPaymentRequired func(c *fiber.Ctx, user *billing.User) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// UserKey is the Locals key RequirePlan stores the loaded *billing.User under.
const UserKey = "billing:user"

// RequirePlan creates a Fiber middleware that only lets users on one of cfg.Plans through.
func RequirePlan(cfg Config) fiber.Handler {
	if cfg.Service == nil {
		panic("gobilling/fiber: Config.Service is required")
	}
	if cfg.GetUserID == nil {
		panic("gobilling/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		user, err := cfg.Service.RequirePlan(c.UserContext(), cfg.GetUserID(c), cfg.Plans...)
		switch {
		case err == nil:
		case errors.Is(err, billing.ErrLoginRequired):
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, billing.ErrPlanRequired):
			if cfg.OnPaymentRequired != nil {
				return cfg.OnPaymentRequired(c, user)
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(httpmw.PlanRequiredResponse{
				Error:       err.Error(),
				CurrentPlan: user.Plan,
				UpgradeURL:  cfg.UpgradeURL,
			})
		default:
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		c.Locals(UserKey, user)
		return c.Next()
	}
}

// Mount registers the billing router under h.BasePath() through Fiber's net/http adaptor.
// When getUserID is not nil the user it resolves is handed to the router through the
// request context, so the handler should be configured with api.FromContext(httpmw.UserIDKey).
func Mount(r fiber.Router, h *api.Handler, getUserID UserIDExtractor) {
	base := h.BasePath()
	stripped := http.StripPrefix(base, h)
	anonymous := adaptor.HTTPHandler(stripped)

	handle := func(c *fiber.Ctx) error {
		if getUserID == nil {
			return anonymous(c)
		}
		userID := getUserID(c)
		if userID == "" {
			return anonymous(c)
		}
		return adaptor.HTTPHandler(withUserID(stripped, userID))(c)
	}
	r.All(base, handle)
	r.All(base+"/*", handle)
}

// withUserID binds userID to the request context. Fiber locals do not survive the
// conversion to a net/http request.
func withUserID(next http.Handler, userID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(httpmw.WithUserID(r.Context(), userID)))
	})
}

// FromContext returns a UserIDExtractor that gets user ID from Fiber context values (Locals)
//
// Example:
//
//	// In your auth middleware:
//	c.Locals("UserID", userID)
//
//	// In billing config:
//	GetUserID: fiber.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// CurrentUser returns the user stored by RequirePlan.
func CurrentUser(c *fiber.Ctx) (*billing.User, bool) {
	user, ok := c.Locals(UserKey).(*billing.User)
	return user, ok
}

package gin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"

	httpmw "github.com/mihaimyh/gobilling/middleware/http"
	"github.com/mihaimyh/gobilling/pkg/api"
	"github.com/mihaimyh/gobilling/pkg/billing"
	"github.com/mihaimyh/gobilling/pkg/billing/billingtest"
	"github.com/mihaimyh/gobilling/storage/memory"
)

func init() {
	gongin.SetMode(gongin.TestMode)
}

// Test helper to create a billing service with one free and one pro user
func setupTestService(t *testing.T) *billing.Service {
	t.Helper()

	service, err := billing.NewService(billing.Config{
		Client: billingtest.NewClient(),
		Store: memory.New(
			&billing.User{ID: "free-user", Plan: billing.FreePlanID},
			&billing.User{ID: "pro-user", Plan: "pro"},
		),
		Plans: []billing.Plan{
			{ID: billing.FreePlanID, Name: "Free"},
			{ID: "pro", ProviderPlanID: "price_pro", Name: "Pro"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return service
}

func TestRequirePlan(t *testing.T) {
	service := setupTestService(t)

	r := gongin.New()
	r.Use(RequirePlan(Config{
		Service:    service,
		GetUserID:  FromHeader("X-User-ID"),
		Plans:      []string{"pro"},
		UpgradeURL: "/billing/chooseplan",
	}))
	r.GET("/reports", func(c *gongin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, user.Plan)
	})

	tests := []struct {
		userID     string
		wantStatus int
	}{
		{"pro-user", http.StatusOK},
		{"free-user", http.StatusPaymentRequired},
		{"ghost", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
		if tt.userID != "" {
			req.Header.Set("X-User-ID", tt.userID)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tt.wantStatus {
			t.Errorf("user %q: expected status %d, got %d: %s", tt.userID, tt.wantStatus, w.Code, w.Body.String())
		}
		if tt.wantStatus == http.StatusOK && w.Body.String() != "pro" {
			t.Errorf("Expected the loaded user in the gin context, got %q", w.Body.String())
		}
	}
}

func TestRequirePlan_CustomPaymentRequired(t *testing.T) {
	service := setupTestService(t)

	r := gongin.New()
	r.Use(RequirePlan(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
		OnPaymentRequired: func(c *gongin.Context, user *billing.User) {
			c.Redirect(http.StatusFound, "/pricing?from="+user.Plan)
		},
	}))
	r.GET("/reports", func(c *gongin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("X-User-ID", "free-user")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/pricing?from=free" {
		t.Errorf("Expected redirect to pricing, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRequirePlan_PanicsWithoutService(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing service")
		}
	}()
	RequirePlan(Config{GetUserID: FromHeader("X-User-ID")})
}

func TestMount(t *testing.T) {
	service := setupTestService(t)
	handler, err := api.NewHandler(api.Config{
		Service:   service,
		GetUserID: api.FromContext(httpmw.UserIDKey),
	})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	r := gongin.New()
	r.Use(func(c *gongin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set("UserID", id)
		}
		c.Next()
	})
	Mount(r, handler, FromContext("UserID"))

	req := httptest.NewRequest(http.MethodGet, "/billing/setupintent", http.NoBody)
	req.Header.Set("X-User-ID", "pro-user")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/billing/setupintent", http.NoBody)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without user, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/billing/billing.js", http.NoBody)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected billing.js to be public, got %d", w.Code)
	}
}

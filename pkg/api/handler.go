// Package api exposes the billing service as an HTTP handler: the account
// billing dashboard, the upgrade and card endpoints used by billing.js, and the
// provider webhook.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gobilling/internal/httputil"
	"github.com/mihaimyh/gobilling/pkg/billing"
)

const maxUserIDLen = 255

// Handler serves the billing routes. Mount it at Config.BasePath.
type Handler struct {
	config    Config
	router    chi.Router
	limiter   *httputil.RateLimiter
	validate  *validator.Validate
	templates *templates
}

// NewHandler creates a new billing handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		config:    config,
		limiter:   httputil.NewRateLimiter(config.WebhookRateLimit, config.WebhookRateWindow),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		templates: tmpl,
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(securityHeaders)

	r.With(h.limiter.Middleware).Post("/webhook", h.Webhook)
	r.Get("/billing.js", h.Script)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		r.Get("/", h.Dashboard)
		r.Get("/testcoupon", h.TestCoupon)
		r.Get("/setupintent", h.SetupIntent)
		r.Post("/upgrade", h.Upgrade)
		r.Post("/card", h.Card)
		r.Get("/chooseplan", h.ChoosePlan)
		r.Get("/cancelsubscription", h.CancelSubscription)
		r.Get("/resumesubscription", h.ResumeSubscription)
	})
	return r
}

// ServeHTTP implements http.Handler. Paths are relative to the mount point.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Mount registers the handler on mux under Config.BasePath.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.Handle(h.config.BasePath+"/", http.StripPrefix(h.config.BasePath, h))
}

// BasePath returns the path the handler expects to be mounted at.
func (h *Handler) BasePath() string {
	return h.config.BasePath
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.SetSecurityHeaders(w)
		next.ServeHTTP(w, r)
	})
}

// Dashboard renders the billing section of the account page, or the snapshot
// as JSON when the client asks for it.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	snapshot, err := h.config.Service.Snapshot(r.Context(), p.CustomerID, p.User)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		_ = httputil.WriteJSON(w, http.StatusOK, snapshot)
		return
	}
	h.render(w, r, "dashboard.html", h.pageData(snapshot, ""))
}

// ChoosePlan renders the plan picker.
func (h *Handler) ChoosePlan(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	snapshot, err := h.config.Service.Snapshot(r.Context(), p.CustomerID, p.User)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.render(w, r, "chooseplan.html", h.pageData(snapshot, h.config.ChoosePlanRedirect))
}

// TestCoupon reports whether ?code= is a configured coupon.
func (h *Handler) TestCoupon(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, h.config.Service.TestCoupon(r.URL.Query().Get("code")))
}

// SetupIntent starts a card setup for the current customer.
func (h *Handler) SetupIntent(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	intent, err := h.config.Service.SetupIntent(r.Context(), p.CustomerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, SetupIntentResponse{ClientSecret: intent.ClientSecret})
}

// Upgrade subscribes the user to a plan. The response is {} on success or
// {"actionRequired", "secret"} when the card must be authenticated first.
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	var req UpgradeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p := mustPrincipal(r)
	result, err := h.config.Service.Upgrade(r.Context(), billing.UpgradeRequest{
		User:            p.User,
		CustomerID:      p.CustomerID,
		SubscriptionID:  p.SubscriptionID,
		PlanID:          req.UpgradePlan,
		CouponCode:      req.Coupon,
		PaymentMethodID: req.paymentMethod(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, result)
}

// Card attaches a payment method to the user's customer.
func (h *Handler) Card(w http.ResponseWriter, r *http.Request) {
	var req CardRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p := mustPrincipal(r)
	if _, err := h.config.Service.AddCard(r.Context(), p.User, p.CustomerID, req.PaymentMethodID); err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

// CancelSubscription schedules cancellation at period end and redirects to the account page.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if _, err := h.config.Service.Cancel(r.Context(), p.SubscriptionID, p.User); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, h.config.AccountURL, http.StatusSeeOther)
}

// ResumeSubscription undoes CancelSubscription and redirects to the account page.
func (h *Handler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if _, err := h.config.Service.Resume(r.Context(), p.SubscriptionID, p.User); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, h.config.AccountURL, http.StatusSeeOther)
}

// Script serves billing.js.
func (h *Handler) Script(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(billingScript)
}

// Webhook verifies a provider webhook and reconciles the event it names.
// Handling errors answer 500 so the provider redelivers.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := loggerFrom(r.Context(), h.config.Logger)

	if h.config.Verifier == nil {
		logger.Error("webhook received but no verifier is configured")
		h.writeError(w, r, billing.ErrProviderNotConfigured)
		return
	}
	provider := h.config.Verifier.Name()

	body, err := httputil.ReadBody(w, r, h.config.MaxWebhookBodySize)
	if err != nil {
		h.config.Metrics.RecordWebhookError(provider, "invalid_body")
		h.writeError(w, r, err)
		return
	}

	eventID, err := h.config.Verifier.VerifyWebhook(body, r.Header)
	if err != nil {
		errorType := "invalid_payload"
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			errorType = "invalid_signature"
		}
		h.config.Metrics.RecordWebhookError(provider, errorType)
		logger.Warn("webhook rejected",
			billing.Field{Key: "error", Value: err.Error()},
			billing.Field{Key: "ip", Value: httputil.ClientIP(r)},
		)
		h.writeError(w, r, err)
		return
	}

	event, err := h.config.Service.HandleEvent(r.Context(), eventID)
	eventType := "unknown"
	if event != nil {
		eventType = event.Type
	}
	h.config.Metrics.RecordWebhookProcessingDuration(provider, eventType, time.Since(start))
	if err != nil {
		h.config.Metrics.RecordWebhookEvent(provider, eventType, "error")
		h.config.Metrics.RecordWebhookError(provider, "processing_error")
		logger.Error("webhook processing failed",
			billing.Field{Key: "event_id", Value: eventID},
			billing.Field{Key: "error", Value: err.Error()},
		)
		h.writeError(w, r, err)
		return
	}
	h.config.Metrics.RecordWebhookEvent(provider, eventType, "success")

	_ = httputil.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

func mustPrincipal(r *http.Request) *Principal {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		panic("api: billing route served without requireUser")
	}
	return p
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts user ID from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromJWT returns a GetUserID function that reads the subject of an HS256 bearer token.
// Invalid, expired or unsigned tokens yield no user.
func FromJWT(secret []byte) func(*http.Request) string {
	return func(r *http.Request) string {
		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			return ""
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return ""
		}
		subject, err := token.Claims.GetSubject()
		if err != nil {
			return ""
		}
		return subject
	}
}

// FromSession returns a GetUserID function that reads a string value from a gorilla session.
func FromSession(store sessions.Store, sessionName, key string) func(*http.Request) string {
	return func(r *http.Request) string {
		session, err := store.Get(r, sessionName)
		if err != nil {
			return ""
		}
		userID, _ := session.Values[key].(string)
		return userID
	}
}

type principalKey struct{}

// Principal is the authenticated billing context of a request.
type Principal struct {
	User           *billing.User
	CustomerID     string
	SubscriptionID string
}

// PrincipalFromContext returns the principal placed by the handler's auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// requireUser loads the user named by GetUserID and rejects anonymous requests with 401.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := h.config.GetUserID(r)
		if userID == "" || len(userID) > maxUserIDLen {
			h.writeError(w, r, billing.ErrLoginRequired)
			return
		}

		user, err := h.config.Service.User(r.Context(), userID)
		if errors.Is(err, billing.ErrUserNotFound) {
			h.writeError(w, r, billing.ErrLoginRequired)
			return
		}
		if err != nil {
			h.writeError(w, r, fmt.Errorf("failed to load user: %w", err))
			return
		}

		ctx := withPrincipal(r.Context(), &Principal{
			User:           user,
			CustomerID:     user.Billing.CustomerID,
			SubscriptionID: user.Billing.SubscriptionID,
		})
		ctx = withLogger(ctx, loggerFrom(ctx, h.config.Logger).with(billing.Field{Key: "user_id", Value: user.ID}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

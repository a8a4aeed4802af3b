// Package gorilla adapts the billing router and plan gate to gorilla/mux.
package gorilla

import (
	"net/http"

	"github.com/gorilla/mux"

	httpmw "github.com/mihaimyh/gobilling/middleware/http"
	"github.com/mihaimyh/gobilling/pkg/api"
)

// RequirePlan returns httpmw.RequirePlan as a mux middleware.
func RequirePlan(config httpmw.Config) mux.MiddlewareFunc {
	return mux.MiddlewareFunc(httpmw.RequirePlan(config))
}

// Mount registers the billing router on r under h.BasePath() and returns the subrouter.
// Middleware added to the returned router runs before the billing handler.
func Mount(r *mux.Router, h *api.Handler) *mux.Router {
	base := h.BasePath()
	sub := r.PathPrefix(base).Subrouter()
	sub.PathPrefix("/").Handler(http.StripPrefix(base, h))
	return sub
}

// FromVar returns an UserIDExtractor that reads a route variable.
func FromVar(name string) httpmw.UserIDExtractor {
	return func(r *http.Request) string {
		return mux.Vars(r)[name]
	}
}

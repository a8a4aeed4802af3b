package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

//go:embed assets/*.html
var pageFS embed.FS

//go:embed assets/billing.js
var billingScript []byte

type templates struct {
	pages *template.Template
}

func parseTemplates() (*templates, error) {
	pages, err := template.New("").ParseFS(pageFS, "assets/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &templates{pages: pages}, nil
}

// pageData is what dashboard.html and chooseplan.html render.
type pageData struct {
	*billing.Snapshot
	BasePath       string
	PublishableKey string
	Redirect       string
}

func (h *Handler) pageData(snapshot *billing.Snapshot, redirect string) pageData {
	return pageData{
		Snapshot:       snapshot,
		BasePath:       h.config.BasePath,
		PublishableKey: h.config.StripePublishableKey,
		Redirect:       redirect,
	}
}

// render executes into a buffer first so a template failure still yields a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	var buf bytes.Buffer
	if err := h.templates.pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

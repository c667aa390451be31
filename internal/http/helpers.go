package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// routePattern returns the chi route that served r, e.g. /api/expenses/{id}.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// wantsConfirm reports an explicit confirm=true|1|yes query flag.
func wantsConfirm(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("confirm"))) {
	case "true", "1", "yes":
		return true
	}
	return false
}

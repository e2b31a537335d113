package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group;
// when it is a DropCounter, /status reports its dropped events.
func NewRouter(eng Engine, cfg SettingsStore, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(eng, cfg)
	if dc, ok := sseHandler.(DropCounter); ok {
		h.events = dc
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Queries.
	r.Get("/search", h.Search)
	r.Get("/status", h.Status)

	// Scans.
	r.Post("/rescan", h.Rescan)
	r.Post("/rescan/cancel", h.CancelScan)

	// Settings and aliases.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Get("/aliases", h.GetAliases)
	r.Put("/aliases", h.PutAliases)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

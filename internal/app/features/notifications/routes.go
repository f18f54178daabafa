// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/notifications. Every signed-in
// role reads its own inbox.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/{id}/read", h.HandleMarkRead)
	return r
}

// internal/app/features/documents/routes.go
package documents

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/documents.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Route("/{id}", func(r chi.Router) {
		r.Post("/transition", h.HandleTransition)
		r.Get("/history", h.ServeHistory)

		r.Route("/resolution", func(r chi.Router) {
			r.With(sm.RequireRole(authz.AssignRoles...)).Post("/", h.HandleCreateResolution)
			r.With(sm.RequireRole(authz.AssignRoles...)).Put("/executor", h.HandleReassignExecutor)
			r.Post("/comments", h.HandleAddComment)
			r.Post("/complete", h.HandleComplete)
		})
	})
	return r
}

// internal/app/features/discipline/routes.go
package discipline

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/discipline.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.With(sm.RequireRole(authz.DisciplineRoles...)).Post("/actions", h.HandleAction)
	r.With(sm.RequireRole(authz.ReportRoles...)).Get("/stats", h.ServeStats)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/history", h.ServeUserHistory)
		r.With(sm.RequireRole(models.UserRoleAdmin)).Delete("/record", h.HandleReset)
	})
	return r
}

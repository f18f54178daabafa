// internal/app/features/resolutions/routes.go
package resolutions

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/resolutions.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.With(sm.RequireRole(authz.ReportRoles...)).Get("/stats", h.ServeStats)
	r.Get("/by-role", h.ServeByRole)
	return r
}

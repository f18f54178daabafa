// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/audit. Access is restricted to
// admins and the chancellery.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole(authz.AuditRoles...))

		pr.Get("/", h.ServeList)
	})

	return r
}

// internal/app/features/deadlines/routes.go
package deadlines

import (
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router mounted at /api/deadlines. Manual scans are
// limited per user by scanLimit; a nil limiter disables the limit.
func Routes(h *Handler, sm *auth.SessionManager, scanLimit *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(authz.ScanRoles...))
		if scanLimit != nil {
			pr.Use(scanLimit.Middleware(h.Log))
		}
		pr.Post("/overdue-scan", h.HandleOverdueScan)
		pr.Post("/upcoming-scan", h.HandleUpcomingScan)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(authz.ReportRoles...))
		pr.Get("/stuck", h.ServeStuck)
		pr.Get("/nearing", h.ServeNearing)
		pr.Get("/stage-stats", h.ServeStageStats)
	})
	return r
}

// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	auditlogfeature "github.com/dalemusser/docflow/internal/app/features/auditlog"
	deadlinesfeature "github.com/dalemusser/docflow/internal/app/features/deadlines"
	disciplinefeature "github.com/dalemusser/docflow/internal/app/features/discipline"
	documentsfeature "github.com/dalemusser/docflow/internal/app/features/documents"
	errorsfeature "github.com/dalemusser/docflow/internal/app/features/errors"
	healthfeature "github.com/dalemusser/docflow/internal/app/features/health"
	notificationsfeature "github.com/dalemusser/docflow/internal/app/features/notifications"
	resolutionsfeature "github.com/dalemusser/docflow/internal/app/features/resolutions"
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for docflow.
//
// WAFFLE calls this after configuration, DB connections, schema setup and
// Startup have completed, so deps.Runtime already carries the workflow
// services. The router:
//  1. Loads the caller's identity from the session cookie on every request
//  2. Serves /health without authentication
//  3. Mounts the JSON API feature routers under /api
//  4. Answers unknown routes and methods with JSON errors
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.Runtime == nil || deps.Runtime.Services == nil {
		return nil, fmt.Errorf("build handler: workflow services not started")
	}
	rt := deps.Runtime

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errorsHandler := errorsfeature.NewHandler()

	r := chi.NewRouter()
	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rt.Jobs, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Route("/api", func(api chi.Router) {
		api.NotFound(errorsHandler.NotFound)
		api.MethodNotAllowed(errorsHandler.MethodNotAllowed)

		// Stage transitions and resolution lifecycle
		documentsHandler := documentsfeature.NewHandler(rt.Services, logger)
		api.Mount("/documents", documentsfeature.Routes(documentsHandler, sessionMgr))

		// Resolution reporting
		resolutionsHandler := resolutionsfeature.NewHandler(rt.Services, logger)
		api.Mount("/resolutions", resolutionsfeature.Routes(resolutionsHandler, sessionMgr))

		// Deadline scans and stage queries
		deadlinesHandler := deadlinesfeature.NewHandler(rt.Services, logger)
		api.Mount("/deadlines", deadlinesfeature.Routes(deadlinesHandler, sessionMgr, rt.ScanLimit))

		// Disciplinary ledger
		disciplineHandler := disciplinefeature.NewHandler(rt.Services, logger)
		api.Mount("/discipline", disciplinefeature.Routes(disciplineHandler, sessionMgr))

		// Audit trail
		if rt.Audit != nil && rt.Users != nil {
			auditHandler := auditlogfeature.NewHandler(rt.Audit, rt.Users, logger)
			api.Mount("/audit", auditlogfeature.Routes(auditHandler, sessionMgr))
		}

		// The caller's notification inbox
		if rt.Inbox != nil {
			notificationsHandler := notificationsfeature.NewHandler(rt.Inbox, logger)
			api.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))
		}
	})

	return r, nil
}

// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/docflow/internal/app/store/audit"
	notificationstore "github.com/dalemusser/docflow/internal/app/store/notifications"
	jobstore "github.com/dalemusser/docflow/internal/app/store/sideeffectjobs"
	userstore "github.com/dalemusser/docflow/internal/app/store/users"
	"github.com/dalemusser/docflow/internal/app/system/ratelimit"
	"github.com/dalemusser/docflow/internal/app/system/tasks"
	"github.com/dalemusser/docflow/internal/app/system/workers"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Runtime is allocated by ConnectDB and filled in by Startup. WAFFLE
	// passes DBDeps by value, so the pointer carries the services and
	// background workers through to BuildHandler and Shutdown.
	Runtime *Runtime
}

// Runtime holds the workflow services and the goroutines started for them.
type Runtime struct {
	Services  *workflow.Services
	Jobs      *jobstore.Store
	Inbox     *notificationstore.Store
	Audit     *audit.Store
	Users     *userstore.Store
	Retry     *workers.SideEffectRetry
	Scheduler *tasks.Scheduler
	ScanLimit *ratelimit.Limiter // nil when scan rate limiting is off
}

// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/stages"
	"github.com/dalemusser/docflow/internal/app/workflow"
)

// AppConfig holds service-specific configuration for docflow.
//
// Values come from environment variables (DOCFLOW_*), configuration files,
// or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// ports, TLS, logging and CORS; everything about documents, deadlines and
// discipline lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie issued by the external authentication service
	SessionKey    string        // Secret key for verifying session cookies
	SessionName   string        // Cookie name (default: docflow-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime for locally issued sessions

	// Stage budgets override file (YAML). Blank uses the built-in table.
	StageBudgetsFile string

	// Workflow tuning
	DisciplineWindowMonths int
	OverdueDedupe          bool
	DeadlineTimeZone       string // IANA name, e.g. Asia/Tashkent
	NearingThreshold       float64

	// Side-effect retry queue
	SideEffectRetryInterval time.Duration
	SideEffectMaxAttempts   int
	StaleJobThreshold       time.Duration

	// Notification retention for read notifications
	NotificationRetention time.Duration

	// Deadline scan endpoints, per caller
	ScanRateLimit  int
	ScanRateWindow time.Duration

	// Audit logging destinations: "all", "db", "log" or "off"
	AuditLogDocument   string
	AuditLogDiscipline string
}

// workflowConfig resolves the stage registry and workflow tuning.
func (c AppConfig) workflowConfig() (*stages.Registry, workflow.Config, error) {
	reg, err := stages.LoadFile(c.StageBudgetsFile)
	if err != nil {
		return nil, workflow.Config{}, err
	}
	loc, err := time.LoadLocation(c.DeadlineTimeZone)
	if err != nil {
		return nil, workflow.Config{}, fmt.Errorf("deadline_time_zone %q: %w", c.DeadlineTimeZone, err)
	}
	return reg, workflow.Config{
		DisciplineWindowMonths: c.DisciplineWindowMonths,
		OverdueDedupe:          c.OverdueDedupe,
		DeadlineLocation:       loc,
		NearingThreshold:       c.NearingThreshold,
	}, nil
}

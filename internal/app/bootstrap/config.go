// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/auditlog"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for docflow.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, stage_budgets_file, etc.
//   - Environment variables: DOCFLOW_MONGO_URI, DOCFLOW_STAGE_BUDGETS_FILE, etc.
//   - Command-line flags: --mongo_uri, --stage_budgets_file, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "docflow", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key shared with the auth service"},
	{Name: "session_name", Default: "docflow-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "12h", Desc: "Lifetime of locally issued session cookies"},

	// Stage budgets
	{Name: "stage_budgets_file", Default: "", Desc: "YAML file overriding stage budgets, terminal and reviewer stages"},

	// Workflow tuning
	{Name: "discipline_window_months", Default: workflow.DefaultDisciplineWindowMonths, Desc: "Trailing months counted for manual disciplinary actions"},
	{Name: "overdue_dedupe", Default: false, Desc: "Skip documents already escalated in their current stage during overdue scans"},
	{Name: "deadline_time_zone", Default: "Asia/Tashkent", Desc: "Time zone that defines 'today' for the upcoming deadline scan"},
	{Name: "nearing_threshold", Default: "0.8", Desc: "Default budget fraction for the nearing-deadline query (0 < t <= 1)"},

	// Side-effect retry queue
	{Name: "side_effect_retry_interval", Default: "1m", Desc: "How often the retry worker drains the side-effect queue"},
	{Name: "side_effect_max_attempts", Default: 5, Desc: "Delivery attempts before a side-effect job is marked failed"},
	{Name: "side_effect_stale_after", Default: "10m", Desc: "Processing jobs older than this are returned to pending"},

	// Notifications
	{Name: "notification_retention_days", Default: 90, Desc: "Days read notifications are kept"},

	// Deadline scan rate limit
	{Name: "scan_rate_limit", Default: 10, Desc: "Deadline scans allowed per caller per window (0 disables)"},
	{Name: "scan_rate_window", Default: "1m", Desc: "Deadline scan rate limit window"},

	// Audit logging settings
	{Name: "audit_log_document", Default: "all", Desc: "Document event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_discipline", Default: "all", Desc: "Discipline event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, DOCFLOW_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "DOCFLOW", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	threshold, err := strconv.ParseFloat(strings.TrimSpace(appValues.String("nearing_threshold")), 64)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("nearing_threshold: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 12*time.Hour),

		StageBudgetsFile: appValues.String("stage_budgets_file"),

		DisciplineWindowMonths: appValues.Int("discipline_window_months"),
		OverdueDedupe:          appValues.Bool("overdue_dedupe"),
		DeadlineTimeZone:       appValues.String("deadline_time_zone"),
		NearingThreshold:       threshold,

		SideEffectRetryInterval: appValues.Duration("side_effect_retry_interval", time.Minute),
		SideEffectMaxAttempts:   appValues.Int("side_effect_max_attempts"),
		StaleJobThreshold:       appValues.Duration("side_effect_stale_after", 10*time.Minute),

		NotificationRetention: time.Duration(appValues.Int("notification_retention_days")) * 24 * time.Hour,

		ScanRateLimit:  appValues.Int("scan_rate_limit"),
		ScanRateWindow: appValues.Duration("scan_rate_window", time.Minute),

		AuditLogDocument:   appValues.String("audit_log_document"),
		AuditLogDiscipline: appValues.String("audit_log_discipline"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// It checks the MongoDB URI format, the workflow tuning values and the
// audit settings, then loads the stage budget file.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.MongoDatabase) == "" {
		return fmt.Errorf("mongo_database must not be empty")
	}
	if appCfg.NearingThreshold <= 0 || appCfg.NearingThreshold > 1 {
		return fmt.Errorf("nearing_threshold must be in (0, 1], got %v", appCfg.NearingThreshold)
	}
	if appCfg.DisciplineWindowMonths <= 0 {
		return fmt.Errorf("discipline_window_months must be positive, got %d", appCfg.DisciplineWindowMonths)
	}
	if appCfg.SideEffectMaxAttempts <= 0 {
		return fmt.Errorf("side_effect_max_attempts must be positive, got %d", appCfg.SideEffectMaxAttempts)
	}
	if appCfg.SideEffectRetryInterval <= 0 {
		return fmt.Errorf("side_effect_retry_interval must be positive")
	}
	if appCfg.ScanRateLimit < 0 {
		return fmt.Errorf("scan_rate_limit must not be negative")
	}
	for name, v := range map[string]string{
		"audit_log_document":   appCfg.AuditLogDocument,
		"audit_log_discipline": appCfg.AuditLogDiscipline,
	} {
		if !auditlog.ValidSetting(v) {
			return fmt.Errorf("%s: unknown setting %q (want all, db, log or off)", name, v)
		}
	}

	reg, _, err := appCfg.workflowConfig()
	if err != nil {
		logger.Error("workflow configuration rejected", zap.Error(err))
		return err
	}
	logger.Info("stage budgets loaded",
		zap.String("file", appCfg.StageBudgetsFile),
		zap.Int("stages", len(reg.Stages())))
	return nil
}

// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off" // disabled
)

// ValidSetting reports whether s is a known destination setting.
func ValidSetting(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case All, DB, Log, Off:
		return true
	}
	return false
}

// Config holds audit logging configuration.
type Config struct {
	// Document controls logging for document events (transitions, resolutions).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Document string
	// Discipline controls logging for disciplinary events (sanctions, record resets).
	Discipline string
}

// Logger writes audit events to MongoDB (via audit.Store) and structured
// logs (via zap). It implements sideeffects.Auditor.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
	now    func() time.Time
}

var _ sideeffects.Auditor = (*Logger)(nil)

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
		now:    time.Now,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
	}
	if event.DocumentID != nil {
		fields = append(fields, zap.String("document_id", event.DocumentID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}
	l.zapLog.Info("audit event", fields...)
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryDocument:
		s = l.config.Document
	case audit.CategoryDiscipline:
		s = l.config.Discipline
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return All
	}
	return s
}

// Log records an audit event based on configuration. A nil Logger is a
// no-op. Store failures are returned so the caller can retry.
func (l *Logger) Log(ctx context.Context, event audit.Event) error {
	if l == nil {
		return nil
	}
	if event.Category == "" {
		event.Category = audit.CategoryFor(event.EventType)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	setting := l.setting(event.Category)
	if setting == Off {
		return nil
	}
	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
			return err
		}
	}
	return nil
}

// Record converts a workflow audit record into an audit event and logs it.
// A "user_id" detail becomes the event's affected user.
func (l *Logger) Record(ctx context.Context, rec models.AuditRecord) error {
	event := audit.Event{
		DocumentID: rec.DocumentID,
		Category:   audit.CategoryFor(rec.Action),
		EventType:  rec.Action,
		ActorID:    rec.ActorID,
		Details:    rec.Detail,
	}
	if hex, ok := rec.Detail["user_id"]; ok {
		if id, err := primitive.ObjectIDFromHex(hex); err == nil {
			event.UserID = &id
		}
	}
	return l.Log(ctx, event)
}

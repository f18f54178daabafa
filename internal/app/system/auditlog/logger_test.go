package auditlog_test

import (
	"testing"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/app/system/auditlog"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := logger.Log(ctx, audit.Event{EventType: "test"}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := logger.Record(ctx, models.AuditRecord{Action: audit.EventStageTransition}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{
		Document:   auditlog.Off,
		Discipline: auditlog.Off,
	})

	docID := primitive.NewObjectID()
	err := logger.Record(ctx, models.AuditRecord{DocumentID: &docID, Action: audit.EventStageTransition})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := store.GetByDocument(ctx, docID, 10)
	if err != nil {
		t.Fatalf("GetByDocument failed: %v", err)
	}
	if len(events) != 0 {
		t.Error("expected no events when config is 'off'")
	}
}

func TestLogger_Record_ConfigDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.New(core), auditlog.Config{Discipline: auditlog.DB})

	user := primitive.NewObjectID()
	actor := primitive.NewObjectID()
	err := logger.Record(ctx, models.AuditRecord{
		Action:  audit.EventDisciplinaryAction,
		ActorID: &actor,
		Detail:  map[string]string{"user_id": user.Hex(), "level": "warning"},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := store.GetByUser(ctx, user, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != audit.CategoryDiscipline {
		t.Errorf("Category: got %q, want %q", events[0].Category, audit.CategoryDiscipline)
	}
	if events[0].ActorID == nil || *events[0].ActorID != actor {
		t.Errorf("ActorID: got %v, want %v", events[0].ActorID, actor)
	}
	if logs.Len() != 0 {
		t.Errorf("expected no zap output for 'db', got %d entries", logs.Len())
	}
}

func TestLogger_Log_ConfigLogOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// No store: "log" must never touch it.
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Document: auditlog.Log})

	docID := primitive.NewObjectID()
	err := logger.Record(ctx, models.AuditRecord{
		DocumentID: &docID,
		Action:     audit.EventStageTransition,
		Detail:     map[string]string{"from": "registration", "to": "resolution"},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries := logs.FilterMessage("audit event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["document_id"] != docID.Hex() {
		t.Errorf("document_id: got %v", fields["document_id"])
	}
	if fields["detail_to"] != "resolution" {
		t.Errorf("detail_to: got %v", fields["detail_to"])
	}
	if fields["category"] != audit.CategoryDocument {
		t.Errorf("category: got %v", fields["category"])
	}
}

func TestLogger_CategoryFilteredByConfig(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(nil, zap.New(core), auditlog.Config{
		Document:   auditlog.Off,
		Discipline: auditlog.Log,
	})

	_ = logger.Record(ctx, models.AuditRecord{Action: audit.EventStageTransition})
	_ = logger.Record(ctx, models.AuditRecord{Action: audit.EventRecordReset})

	if logs.Len() != 1 {
		t.Fatalf("expected only the discipline event, got %d entries", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["event_type"]; got != audit.EventRecordReset {
		t.Errorf("event_type: got %v", got)
	}
}

func TestValidSetting(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"all", true},
		{" DB ", true},
		{"log", true},
		{"off", true},
		{"", false},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := auditlog.ValidSetting(tt.in); got != tt.want {
			t.Errorf("ValidSetting(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

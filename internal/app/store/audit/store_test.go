package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	"github.com/dalemusser/docflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	docID := primitive.NewObjectID()
	event := audit.Event{
		DocumentID: &docID,
		Category:   audit.CategoryDocument,
		EventType:  audit.EventStageTransition,
		Details:    map[string]string{"from": "registration", "to": "resolution"},
	}
	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByDocument(ctx, docID, 10)
	if err != nil {
		t.Fatalf("GetByDocument failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if events[0].Details["to"] != "resolution" {
		t.Errorf("Details: got %v", events[0].Details)
	}
}

func TestStore_Query(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := primitive.NewObjectID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []audit.Event{
		{Timestamp: base, Category: audit.CategoryDocument, EventType: audit.EventStageTransition},
		{Timestamp: base.Add(time.Hour), Category: audit.CategoryDocument, EventType: audit.EventResolutionCreated},
		{Timestamp: base.Add(2 * time.Hour), Category: audit.CategoryDiscipline, EventType: audit.EventDisciplinaryAction, UserID: &user},
		{Timestamp: base.Add(48 * time.Hour), Category: audit.CategoryDiscipline, EventType: audit.EventRecordReset, UserID: &user},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	end := base.Add(3 * time.Hour)
	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int
	}{
		{"all", audit.QueryFilter{}, 4},
		{"category", audit.QueryFilter{Category: audit.CategoryDiscipline}, 2},
		{"event type", audit.QueryFilter{EventType: audit.EventResolutionCreated}, 1},
		{"user", audit.QueryFilter{UserID: &user}, 2},
		{"time window", audit.QueryFilter{StartTime: &base, EndTime: &end}, 3},
		{"limit", audit.QueryFilter{Limit: 2}, 2},
		{"offset", audit.QueryFilter{Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{Category: audit.CategoryDocument})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByFilter: got %d, want 2", n)
	}

	recent, err := store.GetRecent(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].EventType != audit.EventRecordReset {
		t.Errorf("expected newest event first, got %+v", recent)
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{audit.EventStageTransition, audit.CategoryDocument},
		{audit.EventResolutionCompleted, audit.CategoryDocument},
		{audit.EventDisciplinaryAction, audit.CategoryDiscipline},
		{audit.EventRecordReset, audit.CategoryDiscipline},
		{"something_else", audit.CategoryDocument},
	}
	for _, tt := range tests {
		if got := audit.CategoryFor(tt.eventType); got != tt.want {
			t.Errorf("CategoryFor(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

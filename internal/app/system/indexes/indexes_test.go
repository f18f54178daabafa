package indexes_test

import (
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/system/indexes"
	"github.com/dalemusser/docflow/internal/testutil"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexNames(t *testing.T, coll *mongo.Collection) map[string]bool {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesExpectedIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	tests := []struct {
		coll  string
		names []string
	}{
		{"documents", []string{"uniq_documents_regnumber", "idx_documents_stage_deadline", "idx_documents_primary_deadline"}},
		{"stage_history", []string{indexes.OpenOccupancyIndex, "idx_history_doc_entered", "idx_history_stage_open_entered"}},
		{"violations", []string{"idx_violations_user_created"}},
		{"kpi_records", []string{"uniq_kpi_user_period"}},
		{"side_effect_jobs", []string{"idx_jobs_status_next", "idx_jobs_correlation"}},
		{"audit_events", []string{"idx_audit_timestamp", "idx_audit_doc_timestamp"}},
	}
	for _, tt := range tests {
		t.Run(tt.coll, func(t *testing.T) {
			got := indexNames(t, db.Collection(tt.coll))
			for _, name := range tt.names {
				if !got[name] {
					t.Errorf("expected index %q to exist", name)
				}
			}
		})
	}
}

func TestEnsureAll_OneOpenOccupancyPerDocument(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	coll := db.Collection("stage_history")
	doc := primitive.NewObjectID()
	now := time.Now().UTC()
	row := func(open bool) bson.M {
		return bson.M{"document_id": doc, "stage": "registration", "entered_at": now, "open": open}
	}

	if _, err := coll.InsertOne(ctx, row(false)); err != nil {
		t.Fatalf("insert closed row: %v", err)
	}
	if _, err := coll.InsertOne(ctx, row(false)); err != nil {
		t.Fatalf("closed rows must not collide: %v", err)
	}
	if _, err := coll.InsertOne(ctx, row(true)); err != nil {
		t.Fatalf("insert open row: %v", err)
	}
	_, err := coll.InsertOne(ctx, row(true))
	if !wafflemongo.IsDup(err) {
		t.Errorf("expected duplicate key error for second open row, got %v", err)
	}
}

func TestEnsureAll_ReplacesIndexWithDifferentName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection("violations")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("legacy_name"),
	})
	if err != nil {
		t.Fatalf("create legacy index: %v", err)
	}

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	got := indexNames(t, coll)
	if got["legacy_name"] {
		t.Error("expected legacy index to be dropped")
	}
	if !got["idx_violations_user_created"] {
		t.Error("expected idx_violations_user_created to exist")
	}
}

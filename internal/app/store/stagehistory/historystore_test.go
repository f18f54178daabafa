package historystore_test

import (
	"testing"
	"time"

	historystore "github.com/dalemusser/docflow/internal/app/store/stagehistory"
	"github.com/dalemusser/docflow/internal/app/store/queries/criteria"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/indexes"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) (*historystore.Store, *testutil.Fixtures, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return historystore.New(db), testutil.NewFixtures(t, db), db
}

func TestStore_OpenAndClose(t *testing.T) {
	store, _, _ := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	doc := primitive.NewObjectID()
	entered := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	none, err := store.OpenFor(ctx, doc)
	if err != nil || none != nil {
		t.Fatalf("OpenFor on empty history: got %v, %v", none, err)
	}

	row, err := store.Open(ctx, models.StageOccupancy{DocumentID: doc, Stage: models.StageRegistration, EnteredAt: entered})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !row.Open {
		t.Error("expected opened row to be open")
	}

	open, err := store.OpenFor(ctx, doc)
	if err != nil || open == nil {
		t.Fatalf("OpenFor: got %v, %v", open, err)
	}
	if open.ID != row.ID {
		t.Errorf("OpenFor returned %s, want %s", open.ID.Hex(), row.ID.Hex())
	}

	if err := store.Close(ctx, row.ID, entered.Add(90*time.Minute), 90); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	rows, err := store.ListForDocument(ctx, doc)
	if err != nil {
		t.Fatalf("ListForDocument failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Open || rows[0].DurationMinutes == nil || *rows[0].DurationMinutes != 90 {
		t.Errorf("unexpected closed row: %+v", rows)
	}

	// Closing twice is an invariant breach, not a missing row.
	if err := store.Close(ctx, row.ID, entered, 0); !apperr.IsInvariant(err) {
		t.Errorf("expected Invariant on double close, got %v", err)
	}
	if err := store.Close(ctx, primitive.NewObjectID(), entered, 0); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown row, got %v", err)
	}
}

func TestStore_Open_SecondOpenRowRejected(t *testing.T) {
	store, _, _ := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	doc := primitive.NewObjectID()
	now := time.Now().UTC()
	if _, err := store.Open(ctx, models.StageOccupancy{DocumentID: doc, Stage: models.StageRegistration, EnteredAt: now}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_, err := store.Open(ctx, models.StageOccupancy{DocumentID: doc, Stage: models.StageResolution, EnteredAt: now})
	if !apperr.IsInvariant(err) {
		t.Errorf("expected Invariant for second open row, got %v", err)
	}
}

func TestStore_ListOpenEnteredBefore(t *testing.T) {
	store, fixtures, _ := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := fixtures.CreateOpenOccupancy(ctx, primitive.NewObjectID(), models.StageExecution, now.Add(-5*time.Hour), nil)
	fixtures.CreateOpenOccupancy(ctx, primitive.NewObjectID(), models.StageExecution, now.Add(-time.Hour), nil)
	fixtures.CreateOpenOccupancy(ctx, primitive.NewObjectID(), models.StageDrafting, now.Add(-5*time.Hour), nil)

	got, err := store.ListOpenEnteredBefore(ctx, models.StageExecution, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("ListOpenEnteredBefore failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Errorf("got %d rows, want only the 5h old execution row", len(got))
	}
}

func TestStore_ListEntered(t *testing.T) {
	store, fixtures, _ := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dept := primitive.NewObjectID()
	user := primitive.NewObjectID()

	inDept := fixtures.CreateAssignedDocument(ctx, "H-1", user, base.Add(240*time.Hour), &dept)
	other := fixtures.CreateDocument(ctx, "H-2", models.StageRegistration)

	fixtures.CreateOpenOccupancy(ctx, inDept.ID, models.StageExecution, base.Add(24*time.Hour), &user)
	fixtures.CreateOpenOccupancy(ctx, other.ID, models.StageRegistration, base.Add(120*time.Hour), nil)

	rangeC, err := criteria.Between(base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Between: %v", err)
	}

	tests := []struct {
		name string
		c    criteria.Criteria
		want int
	}{
		{"all", criteria.All(), 2},
		{"date range", rangeC, 1},
		{"performer", criteria.ForUser(user), 1},
		{"department via document", criteria.ForDepartment(dept), 1},
		{"empty department", criteria.ForDepartment(primitive.NewObjectID()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListEntered(ctx, tt.c)
			if err != nil {
				t.Fatalf("ListEntered failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d rows, want %d", len(got), tt.want)
			}
		})
	}
}

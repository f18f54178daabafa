package userstore_test

import (
	"testing"

	userstore "github.com/dalemusser/docflow/internal/app/store/users"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		FullName: "  Aziza Karimova ",
		Email:    "Aziza@Example.UZ",
		Role:     "Executor",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.FullName != "Aziza Karimova" {
		t.Errorf("FullName: got %q", created.FullName)
	}
	if created.Email != "aziza@example.uz" {
		t.Errorf("Email: got %q", created.Email)
	}
	if created.Status != models.UserActive {
		t.Errorf("Status: got %q, want %q", created.Status, models.UserActive)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Role != models.UserRoleExecutor {
		t.Errorf("Role: got %q", got.Role)
	}
}

func TestStore_Create_Invalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name string
		user models.User
	}{
		{"bad role", models.User{FullName: "X", Email: "x@test", Role: "member"}},
		{"bad status", models.User{FullName: "X", Email: "x@test", Role: "manager", Status: "gone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.user); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestStore_SetManager(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	boss := fixtures.CreateUser(ctx, "Boss", nil)
	u := fixtures.CreateUser(ctx, "Worker", nil)

	if err := store.SetManager(ctx, u.ID, &boss.ID); err != nil {
		t.Fatalf("SetManager failed: %v", err)
	}
	got, _ := store.GetByID(ctx, u.ID)
	if got.ManagerID == nil || *got.ManagerID != boss.ID {
		t.Errorf("ManagerID: got %v, want %v", got.ManagerID, boss.ID)
	}

	if err := store.SetManager(ctx, u.ID, nil); err != nil {
		t.Fatalf("SetManager(nil) failed: %v", err)
	}
	got, _ = store.GetByID(ctx, u.ID)
	if got.ManagerID != nil {
		t.Errorf("expected manager cleared, got %v", got.ManagerID)
	}
}

func TestStore_ListByDepartment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	dept := primitive.NewObjectID()
	fixtures.CreateUser(ctx, "Zarina", &dept)
	fixtures.CreateUser(ctx, "Bekzod", &dept)
	fixtures.CreateUser(ctx, "Outside", nil)

	got, err := store.ListByDepartment(ctx, dept)
	if err != nil {
		t.Fatalf("ListByDepartment failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d users, want 2", len(got))
	}
	if got[0].FullName != "Bekzod" {
		t.Errorf("expected name order, got %q first", got[0].FullName)
	}
}

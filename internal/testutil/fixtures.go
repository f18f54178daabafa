package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to insert into %s: %v", coll, err)
	}
}

// CreateUser creates an executor in dept (which may be nil).
func (f *Fixtures) CreateUser(ctx context.Context, name string, dept *primitive.ObjectID) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     name,
		Email:        primitive.NewObjectID().Hex() + "@test.local",
		Role:         "executor",
		Status:       "active",
		DepartmentID: dept,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.insert(ctx, "users", u)
	return u
}

// CreateUserWithManager creates an executor reporting to manager.
func (f *Fixtures) CreateUserWithManager(ctx context.Context, name string, manager primitive.ObjectID) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:        primitive.NewObjectID(),
		FullName:  name,
		Email:     primitive.NewObjectID().Hex() + "@test.local",
		Role:      "executor",
		Status:    "active",
		ManagerID: &manager,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "users", u)
	return u
}

// CreateDocument creates a document sitting in stage.
func (f *Fixtures) CreateDocument(ctx context.Context, regNumber string, stage models.Stage) models.Document {
	f.t.Helper()

	now := time.Now().UTC()
	d := models.Document{
		ID:        primitive.NewObjectID(),
		RegNumber: regNumber,
		Title:     "Test document " + regNumber,
		Stage:     stage,
		Status:    models.DocumentStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "documents", d)
	return d
}

// CreateAssignedDocument creates a document in the execution stage with a
// primary executor and deadline.
func (f *Fixtures) CreateAssignedDocument(ctx context.Context, regNumber string, executor primitive.ObjectID, deadline time.Time, dept *primitive.ObjectID) models.Document {
	f.t.Helper()

	now := time.Now().UTC()
	d := models.Document{
		ID:                primitive.NewObjectID(),
		RegNumber:         regNumber,
		Title:             "Test document " + regNumber,
		DepartmentID:      dept,
		Stage:             models.StageExecution,
		Status:            models.DocumentStatusInProgress,
		Deadline:          &deadline,
		PrimaryExecutorID: &executor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.insert(ctx, "documents", d)
	return d
}

// CreateOpenOccupancy records that doc entered stage at enteredAt and has
// not left it.
func (f *Fixtures) CreateOpenOccupancy(ctx context.Context, doc primitive.ObjectID, stage models.Stage, enteredAt time.Time, by *primitive.ObjectID) models.StageOccupancy {
	f.t.Helper()

	o := models.StageOccupancy{
		ID:          primitive.NewObjectID(),
		DocumentID:  doc,
		Stage:       stage,
		EnteredAt:   enteredAt,
		PerformedBy: by,
		Open:        true,
	}
	f.insert(ctx, "stage_history", o)
	return o
}

// CreateViolation records a violation against user at createdAt.
func (f *Fixtures) CreateViolation(ctx context.Context, user primitive.ObjectID, level models.DisciplinaryLevel, createdAt time.Time) models.Violation {
	f.t.Helper()

	v := models.Violation{
		ID:        primitive.NewObjectID(),
		UserID:    user,
		CreatedAt: createdAt,
		Level:     level,
		Kind:      models.ViolationManual,
		Reason:    "fixture",
	}
	f.insert(ctx, "violations", v)
	return v
}

// CreateKPI creates a KPI record for user in the period containing at.
func (f *Fixtures) CreateKPI(ctx context.Context, user primitive.ObjectID, at time.Time, score float64) models.KPIRecord {
	f.t.Helper()

	k := models.KPIRecord{
		ID:        primitive.NewObjectID(),
		UserID:    user,
		Period:    at.UTC().Format(models.KPIPeriodLayout),
		Score:     score,
		UpdatedAt: at,
	}
	f.insert(ctx, "kpi_records", k)
	return k
}

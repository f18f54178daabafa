package documents_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/features/documents"
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"github.com/dalemusser/docflow/internal/testutil/memstore"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	store  *memstore.Store
	router chi.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	svc, err := st.Services(func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }, workflow.Config{})
	if err != nil {
		t.Fatalf("wire services: %v", err)
	}
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return &env{store: st, router: documents.Routes(documents.NewHandler(svc, zap.NewNop()), sm)}
}

func (e *env) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) document() models.Document {
	return e.store.AddDocument(models.Document{RegNumber: "IN-1", Title: "Letter"})
}

func TestTransition(t *testing.T) {
	e := newEnv(t)
	doc := e.document()
	clerk := testutil.SessionAs("chancellery")

	rec := e.do(testutil.NewJSONRequest("POST", "/"+doc.ID.Hex()+"/transition", map[string]string{"stage": "registration"}, clerk))
	rec.AssertStatus(t, http.StatusOK)

	var res workflow.TransitionResult
	rec.DecodeJSON(t, &res)
	if res.NewStage != models.StageRegistration || res.PreviousStage != "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if got, _ := e.store.Document(doc.ID); got.Stage != models.StageRegistration {
		t.Errorf("stored stage: got %q", got.Stage)
	}

	rec = e.do(testutil.NewJSONRequest("GET", "/"+doc.ID.Hex()+"/history", nil, clerk))
	rec.AssertStatus(t, http.StatusOK)
	var hist struct {
		History []models.StageOccupancy `json:"history"`
	}
	rec.DecodeJSON(t, &hist)
	if len(hist.History) != 1 || !hist.History[0].Open {
		t.Errorf("expected one open row, got %+v", hist.History)
	}
}

func TestServeHistory_Participants(t *testing.T) {
	e := newEnv(t)
	exec := e.store.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	doc := e.store.AddDocument(models.Document{RegNumber: "IN-2", Title: "Letter", PrimaryExecutorID: &exec.ID})
	path := "/" + doc.ID.Hex() + "/history"

	e.do(testutil.NewJSONRequest("GET", path, nil, testutil.SessionFor(exec))).AssertStatus(t, http.StatusOK)
	e.do(testutil.NewJSONRequest("GET", path, nil, testutil.SessionAs("executor"))).AssertStatus(t, http.StatusForbidden)
	e.do(testutil.NewJSONRequest("GET", "/"+primitive.NewObjectID().Hex()+"/history", nil, testutil.SessionAs("manager"))).AssertStatus(t, http.StatusNotFound)
}

func TestTransition_Errors(t *testing.T) {
	e := newEnv(t)
	doc := e.document()
	user := testutil.SessionAs("executor")

	tests := []struct {
		name string
		path string
		body any
		user *auth.SessionUser
		want int
	}{
		{"anonymous", "/" + doc.ID.Hex() + "/transition", map[string]string{"stage": "registration"}, nil, http.StatusUnauthorized},
		{"unknown stage", "/" + doc.ID.Hex() + "/transition", map[string]string{"stage": "limbo"}, user, http.StatusBadRequest},
		{"bad id", "/xyz/transition", map[string]string{"stage": "registration"}, user, http.StatusBadRequest},
		{"missing document", "/" + primitive.NewObjectID().Hex() + "/transition", map[string]string{"stage": "registration"}, user, http.StatusNotFound},
		{"malformed body", "/" + doc.ID.Hex() + "/transition", "{", user, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.do(testutil.NewJSONRequest("POST", tt.path, tt.body, tt.user)).AssertStatus(t, tt.want)
		})
	}
}

func TestResolutionLifecycle(t *testing.T) {
	e := newEnv(t)
	doc := e.document()
	executor := e.store.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	clerk := testutil.SessionAs("chancellery")
	base := "/" + doc.ID.Hex() + "/resolution"

	body := map[string]any{
		"text":                "Prepare a reply",
		"primary_executor_id": executor.ID.Hex(),
		"deadline":            time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC),
	}
	e.do(testutil.NewJSONRequest("POST", base, body, testutil.SessionFor(executor))).AssertStatus(t, http.StatusForbidden)

	rec := e.do(testutil.NewJSONRequest("POST", base, body, clerk))
	rec.AssertStatus(t, http.StatusCreated)
	var created workflow.ResolutionResult
	rec.DecodeJSON(t, &created)
	if created.Document.Stage != models.StageAssignment {
		t.Errorf("stage after resolution: got %q", created.Document.Stage)
	}
	if created.Resolution.PrimaryExecutorID == nil || *created.Resolution.PrimaryExecutorID != executor.ID {
		t.Errorf("primary executor: got %v", created.Resolution.PrimaryExecutorID)
	}
	if len(e.store.NotificationsFor(executor.ID)) == 0 {
		t.Error("the executor should have been notified")
	}

	rec = e.do(testutil.NewJSONRequest("POST", base+"/comments", map[string]string{"comment": "Draft attached"}, clerk))
	rec.AssertStatus(t, http.StatusCreated)

	e.do(testutil.NewJSONRequest("POST", base+"/complete", map[string]string{"notes": "sent"}, testutil.SessionFor(executor))).AssertStatus(t, http.StatusOK)
	e.do(testutil.NewJSONRequest("POST", base+"/complete", nil, testutil.SessionFor(executor))).AssertStatus(t, http.StatusConflict)
}

func TestReassignExecutor(t *testing.T) {
	e := newEnv(t)
	doc := e.document()
	next := e.store.AddUser(models.User{FullName: "Nodira", Role: "executor"})
	manager := testutil.SessionAs("manager")

	rec := e.do(testutil.NewJSONRequest("PUT", "/"+doc.ID.Hex()+"/resolution/executor",
		map[string]string{"executor_id": next.ID.Hex(), "reason": "leave"}, manager))
	rec.AssertStatus(t, http.StatusOK)

	got, _ := e.store.Document(doc.ID)
	if got.PrimaryExecutorID == nil || *got.PrimaryExecutorID != next.ID {
		t.Errorf("primary executor: got %v", got.PrimaryExecutorID)
	}

	e.do(testutil.NewJSONRequest("PUT", "/"+doc.ID.Hex()+"/resolution/executor",
		map[string]string{"executor_id": "nope"}, manager)).AssertStatus(t, http.StatusBadRequest)
}

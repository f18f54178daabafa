package discipline_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/features/discipline"
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"github.com/dalemusser/docflow/internal/testutil/memstore"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, st *memstore.Store) chi.Router {
	t.Helper()
	svc, err := st.Services(func() time.Time { return now }, workflow.Config{})
	if err != nil {
		t.Fatalf("wire services: %v", err)
	}
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return discipline.Routes(discipline.NewHandler(svc, zap.NewNop()), sm)
}

func serve(router chi.Router, method, target string, body any, user *auth.SessionUser) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest(method, target, body, user))
	return rec
}

func TestHandleAction_EscalatesAndPenalizes(t *testing.T) {
	st := memstore.New()
	boss := st.AddUser(models.User{FullName: "Boss", Role: "manager"})
	exec := st.AddUser(models.User{FullName: "Aziz", Role: "executor", ManagerID: &boss.ID})
	kpi := st.AddKPI(models.KPIRecord{UserID: exec.ID, Period: "2026-03", Score: 100})
	st.AddViolation(models.Violation{UserID: exec.ID, CreatedAt: now.AddDate(0, -2, 0), Level: models.LevelWarning, Kind: models.ViolationManual, Reason: "late"})
	router := newRouter(t, st)

	rec := serve(router, "POST", "/actions", map[string]string{"user_id": exec.ID.Hex(), "reason": "missed the meeting"}, testutil.SessionFor(boss))
	rec.AssertStatus(t, http.StatusCreated)

	var outcome workflow.Outcome
	rec.DecodeJSON(t, &outcome)
	if outcome.Level != models.LevelReprimand || outcome.ViolationCount != 2 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if got := st.KPIRecord(kpi.ID); got.Score >= 100 {
		t.Errorf("expected a KPI penalty, score is %v", got.Score)
	}
	if len(st.NotificationsFor(boss.ID)) != 1 {
		t.Errorf("the manager should be told once, got %d", len(st.NotificationsFor(boss.ID)))
	}
}

func TestHandleAction_Rejections(t *testing.T) {
	st := memstore.New()
	boss := st.AddUser(models.User{FullName: "Boss", Role: "manager"})
	exec := st.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	router := newRouter(t, st)

	tests := []struct {
		name string
		body any
		user *auth.SessionUser
		want int
	}{
		{"executor cannot sanction", map[string]string{"user_id": boss.ID.Hex(), "reason": "x"}, testutil.SessionFor(exec), http.StatusForbidden},
		{"no reason", map[string]string{"user_id": exec.ID.Hex()}, testutil.SessionFor(boss), http.StatusBadRequest},
		{"self", map[string]string{"user_id": boss.ID.Hex(), "reason": "x"}, testutil.SessionFor(boss), http.StatusForbidden},
		{"unknown user", map[string]string{"user_id": primitive.NewObjectID().Hex(), "reason": "x"}, testutil.SessionFor(boss), http.StatusNotFound},
		{"unknown kind", map[string]string{"user_id": exec.ID.Hex(), "reason": "x", "kind": "tardiness"}, testutil.SessionFor(boss), http.StatusBadRequest},
		{"unknown document", map[string]string{"user_id": exec.ID.Hex(), "reason": "x", "document_id": primitive.NewObjectID().Hex()}, testutil.SessionFor(boss), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serve(router, "POST", "/actions", tt.body, tt.user).AssertStatus(t, tt.want)
		})
	}
	if n := len(st.AllViolations()); n != 0 {
		t.Errorf("rejected actions must not write violations, found %d", n)
	}
}

func TestHandleAction_KindAndDocument(t *testing.T) {
	st := memstore.New()
	boss := st.AddUser(models.User{FullName: "Boss", Role: "manager"})
	exec := st.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	doc := st.AddDocument(models.Document{RegNumber: "IN-3", Title: "Letter"})
	router := newRouter(t, st)

	rec := serve(router, "POST", "/actions", map[string]string{
		"user_id":     exec.ID.Hex(),
		"reason":      "reply was late",
		"kind":        models.ViolationDeadline,
		"document_id": doc.ID.Hex(),
	}, testutil.SessionFor(boss))
	rec.AssertStatus(t, http.StatusCreated)
	var outcome workflow.Outcome
	rec.DecodeJSON(t, &outcome)
	if outcome.Violation.Kind != models.ViolationDeadline {
		t.Errorf("kind: got %q", outcome.Violation.Kind)
	}
	if outcome.Violation.DocumentID == nil || *outcome.Violation.DocumentID != doc.ID {
		t.Errorf("document: got %v", outcome.Violation.DocumentID)
	}

	rec = serve(router, "POST", "/actions", map[string]string{"user_id": exec.ID.Hex(), "reason": "again"}, testutil.SessionFor(boss))
	rec.AssertStatus(t, http.StatusCreated)
	rec.DecodeJSON(t, &outcome)
	if outcome.Violation.Kind != models.ViolationManual {
		t.Errorf("default kind: got %q", outcome.Violation.Kind)
	}
}

func TestUserHistoryAndReset(t *testing.T) {
	st := memstore.New()
	exec := st.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	st.AddViolation(models.Violation{UserID: exec.ID, CreatedAt: now.AddDate(-2, 0, 0), Level: models.LevelWarning, Kind: models.ViolationDeadline, Reason: "old"})
	st.AddViolation(models.Violation{UserID: exec.ID, CreatedAt: now.AddDate(0, -1, 0), Level: models.LevelReprimand, Kind: models.ViolationDeadline, Reason: "recent"})
	router := newRouter(t, st)
	path := "/users/" + exec.ID.Hex()

	rec := serve(router, "GET", path+"/history", nil, testutil.SessionFor(exec))
	rec.AssertStatus(t, http.StatusOK)
	var hist struct {
		History     []workflow.HistoryEntry `json:"history"`
		WindowCount int64                   `json:"window_count"`
		NextLevel   string                  `json:"next_level"`
	}
	rec.DecodeJSON(t, &hist)
	if len(hist.History) != 2 || hist.History[0].Violation.Reason != "old" {
		t.Errorf("history: got %+v", hist.History)
	}
	if hist.WindowCount != 1 || hist.NextLevel != string(models.LevelReprimand) {
		t.Errorf("window: got count %d next %q", hist.WindowCount, hist.NextLevel)
	}

	serve(router, "GET", path+"/history", nil, testutil.SessionAs("executor")).AssertStatus(t, http.StatusForbidden)
	serve(router, "DELETE", path+"/record", nil, testutil.SessionAs("manager")).AssertStatus(t, http.StatusForbidden)

	rec = serve(router, "DELETE", path+"/record", nil, testutil.SessionAs("admin"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"deleted":1`)
	if n := len(st.AllViolations()); n != 1 {
		t.Errorf("expected one violation left, got %d", n)
	}
}

func TestServeStats(t *testing.T) {
	st := memstore.New()
	a := st.AddUser(models.User{FullName: "A", Role: "executor"})
	b := st.AddUser(models.User{FullName: "B", Role: "executor"})
	st.AddViolation(models.Violation{UserID: a.ID, CreatedAt: now, Level: models.LevelWarning, Kind: models.ViolationDeadline, Reason: "x"})
	st.AddViolation(models.Violation{UserID: b.ID, CreatedAt: now, Level: models.LevelWarning, Kind: models.ViolationStageOverrun, Reason: "y"})
	router := newRouter(t, st)

	rec := serve(router, "GET", "/stats", nil, testutil.SessionAs("chancellery"))
	rec.AssertStatus(t, http.StatusOK)
	var stats workflow.ViolationStats
	rec.DecodeJSON(t, &stats)
	if stats.Total != 2 || stats.DistinctUsers != 2 || stats.ByLevel[models.LevelWarning] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = serve(router, "GET", "/stats?user_id="+a.ID.Hex(), nil, testutil.SessionAs("chancellery"))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &stats)
	if stats.Total != 1 {
		t.Errorf("user filter: got %d", stats.Total)
	}
}

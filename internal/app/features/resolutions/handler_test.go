package resolutions_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/docflow/internal/app/features/resolutions"
	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/docflow/internal/domain/models"
	"github.com/dalemusser/docflow/internal/testutil"
	"github.com/dalemusser/docflow/internal/testutil/memstore"
	"github.com/go-chi/chi/v5"
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
	return resolutions.Routes(resolutions.NewHandler(svc, zap.NewNop()), sm)
}

func seed(st *memstore.Store) models.User {
	exec := st.AddUser(models.User{FullName: "Aziz", Role: "executor"})
	late := now.Add(-24 * time.Hour)
	soon := now.Add(48 * time.Hour)
	later := now.Add(96 * time.Hour)
	st.AddDocument(models.Document{RegNumber: "A", Stage: models.StageExecution, PrimaryExecutorID: &exec.ID, Deadline: &later})
	st.AddDocument(models.Document{RegNumber: "B", Stage: models.StageExecution, PrimaryExecutorID: &exec.ID, Deadline: &late})
	st.AddDocument(models.Document{RegNumber: "C", Stage: models.StageCompleted, PrimaryExecutorID: &exec.ID, Deadline: &soon})
	return exec
}

func TestServeStats(t *testing.T) {
	st := memstore.New()
	exec := seed(st)
	router := newRouter(t, st)

	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest("GET", "/stats?user_id="+exec.ID.Hex(), nil, testutil.SessionAs("manager")))
	rec.AssertStatus(t, http.StatusOK)

	var stats workflow.ResolutionStats
	rec.DecodeJSON(t, &stats)
	if stats.TotalAssigned != 3 || stats.Completed != 1 || stats.Overdue != 1 || stats.CompletionRate != 33 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest("GET", "/stats", nil, testutil.SessionFor(exec)))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestServeByRole(t *testing.T) {
	st := memstore.New()
	exec := seed(st)
	router := newRouter(t, st)

	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest("GET", "/by-role?role=primary", nil, testutil.SessionFor(exec)))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	rec.DecodeJSON(t, &resp)
	var order []string
	for _, d := range resp.Documents {
		order = append(order, d.RegNumber)
	}
	if len(order) != 3 || order[0] != "B" || order[1] != "C" || order[2] != "A" {
		t.Errorf("expected deadline order [B C A], got %v", order)
	}

	tests := []struct {
		name  string
		query string
		user  *auth.SessionUser
		want  int
	}{
		{"bad role", "?role=observer", testutil.SessionFor(exec), http.StatusBadRequest},
		{"someone else as executor", "?role=primary&user_id=" + exec.ID.Hex(), testutil.SessionAs("executor"), http.StatusForbidden},
		{"someone else as chancellery", "?role=primary&user_id=" + exec.ID.Hex(), testutil.SessionAs("chancellery"), http.StatusOK},
		{"bad user id", "?role=primary&user_id=zz", testutil.SessionAs("chancellery"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			router.ServeHTTP(rec, testutil.NewJSONRequest("GET", "/by-role"+tt.query, nil, tt.user))
			rec.AssertStatus(t, tt.want)
		})
	}
}

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionFor builds the session identity of a stored user.
func SessionFor(u models.User) *auth.SessionUser {
	su := &auth.SessionUser{ID: u.ID.Hex(), Name: u.FullName, Role: u.Role}
	if u.DepartmentID != nil {
		su.DepartmentID = u.DepartmentID.Hex()
	}
	return su
}

// SessionAs builds a session identity with a fresh ID and the given role.
func SessionAs(role string) *auth.SessionUser {
	return &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Name: "Test " + role, Role: role}
}

// NewJSONRequest creates a request with body encoded as JSON. A nil user
// leaves the request anonymous.
func NewJSONRequest(method, target string, body any, user *auth.SessionUser) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if user != nil {
		req = auth.WithTestUser(req, user)
	}
	return req
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

type errorfer interface {
	Helper()
	Errorf(string, ...any)
	Fatalf(string, ...any)
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t errorfer, expected int) {
	t.Helper()
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body: %s)", r.Code, expected, r.Body.String())
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t errorfer, expected string) {
	t.Helper()
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q: %s", expected, r.Body.String())
	}
}

// DecodeJSON unmarshals the response body into v.
func (r *ResponseRecorder) DecodeJSON(t errorfer, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, r.Body.String())
	}
}

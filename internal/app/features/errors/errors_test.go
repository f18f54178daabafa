package errors_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NotFound("op", "document %s", "x"), http.StatusNotFound},
		{"validation", apperr.Validation("op", "bad", nil), http.StatusBadRequest},
		{"conflict", apperr.Conflict("op", "stale"), http.StatusConflict},
		{"invariant", apperr.Invariant("op", "two open rows"), http.StatusInternalServerError},
		{"configuration", apperr.Configuration("op", "no budget"), http.StatusInternalServerError},
		{"side effect", apperr.SideEffect("op", fmt.Errorf("smtp down")), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("handler: %w", apperr.NotFound("op", "user")), http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uierrors.StatusFor(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteError_ValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/documents/x/transition", nil)
	uierrors.WriteError(rec, req, zap.NewNop(), apperr.Validation("transition", "invalid request", map[string]string{"stage": "unknown stage"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fields["stage"] != "unknown stage" {
		t.Errorf("fields: got %v", resp.Fields)
	}
}

func TestWriteError_InvariantLoggedAndHidden(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", nil)
	uierrors.WriteError(rec, req, zap.New(core), apperr.Invariant("transition", "document %s has two open occupancies", "abc"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := rec.Body.String(); strings.Contains(got, "abc") {
		t.Errorf("invariant details leaked: %s", got)
	}
	entries := logs.FilterField(zap.Bool("invariant", true)).All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Errorf("expected one error-level invariant log, got %v", logs.All())
	}
}


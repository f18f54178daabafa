// internal/app/features/errors/errors.go
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/docflow/internal/app/system/apperr"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"go.uber.org/zap"
)

// body is the JSON shape of every error response.
type body struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindSideEffect:
		return http.StatusBadGateway
	default:
		// Configuration, Invariant and unclassified errors.
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes it as JSON. Server-side failures hide
// their message from the caller.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := StatusFor(err)
	kind := apperr.KindOf(err)
	_, _, actor, _ := authz.UserCtx(r)
	fields := []zap.Field{
		zap.Error(err),
		zap.String("kind", kind.String()),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("actor_id", actor.Hex()),
		zap.Int("status", status),
	}

	resp := body{Error: err.Error(), Kind: kind.String()}
	var ae *apperr.Error
	if stderrors.As(err, &ae) {
		resp.Fields = ae.Fields
	}

	switch {
	case kind == apperr.KindInvariant:
		log.Error("invariant violated", append(fields, zap.Bool("invariant", true))...)
		resp = body{Error: "internal error", Kind: kind.String()}
	case status >= http.StatusInternalServerError:
		log.Error("request failed", fields...)
		resp = body{Error: http.StatusText(status), Kind: kind.String()}
	default:
		log.Info("request rejected", fields...)
	}
	WriteJSON(w, status, resp)
}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler { return &Handler{} }

// Handler serves the router's fallback responses.
type Handler struct{}

// NotFound answers unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, body{Error: "no such route"})
}

// MethodNotAllowed answers known routes called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, body{Error: "method not allowed"})
}

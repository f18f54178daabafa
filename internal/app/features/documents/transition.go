// internal/app/features/documents/transition.go
package documents

import (
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/inputval"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/domain/models"
)

// HandleTransition handles POST /api/documents/{id}/transition.
//
//	{ "stage": "signature", "notes": "..." }
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	const op = "documents.transition"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	var req inputval.TransitionRequest
	if err := inputval.Decode(op, r, &req); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	_, _, actor, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	res, err := h.Engine.Transition(ctx, docID, models.Stage(req.Stage), actor, req.Notes)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, res)
}

// ServeHistory handles GET /api/documents/{id}/history.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	const op = "documents.history"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, op)
	defer cancel()

	doc, err := h.Engine.Document(ctx, docID)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if !authz.CanViewDocument(r, doc) {
		uierrors.RenderForbidden(w, "not a participant of this document")
		return
	}

	rows, err := h.Engine.History(ctx, docID)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []models.StageOccupancy{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"document_id": docID, "history": rows})
}

// internal/app/features/documents/resolution.go
package documents

import (
	"net/http"

	uierrors "github.com/dalemusser/docflow/internal/app/features/errors"
	"github.com/dalemusser/docflow/internal/app/features/shared"
	"github.com/dalemusser/docflow/internal/app/system/authz"
	"github.com/dalemusser/docflow/internal/app/system/inputval"
	"github.com/dalemusser/docflow/internal/app/system/timeouts"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleCreateResolution handles POST /api/documents/{id}/resolution.
func (h *Handler) HandleCreateResolution(w http.ResponseWriter, r *http.Request) {
	const op = "documents.createResolution"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	var req inputval.ResolutionRequest
	if err := inputval.Decode(op, r, &req); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	_, _, actor, _ := authz.UserCtx(r)

	// Bodies passed validation, so every hex parses.
	in := workflow.ResolutionInput{
		Text:              req.Text,
		Deadline:          req.Deadline,
		PrimaryExecutorID: optionalID(req.PrimaryExecutorID),
		EqualExecutorIDs:  ids(req.EqualExecutorIDs),
		CoExecutorIDs:     ids(req.CoExecutorIDs),
		AssistantID:       optionalID(req.AssistantID),
		Priority:          req.Priority,
		Notes:             req.Notes,
		ActorID:           actor,
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	res, err := h.Assigner.CreateResolution(ctx, docID, in)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, res)
}

// HandleReassignExecutor handles PUT /api/documents/{id}/resolution/executor.
func (h *Handler) HandleReassignExecutor(w http.ResponseWriter, r *http.Request) {
	const op = "documents.reassignExecutor"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	var req inputval.ReassignRequest
	if err := inputval.Decode(op, r, &req); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	executor, _ := primitive.ObjectIDFromHex(req.ExecutorID)
	_, _, actor, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	doc, err := h.Assigner.ReassignExecutor(ctx, docID, executor, req.Reason, actor)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, workflow.ResolutionOf(doc))
}

// HandleAddComment handles POST /api/documents/{id}/resolution/comments.
func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	const op = "documents.addComment"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	var req inputval.CommentRequest
	if err := inputval.Decode(op, r, &req); err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	_, _, actor, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, op)
	defer cancel()

	res, err := h.Assigner.AddResolutionComment(ctx, docID, actor, req.Comment)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, res)
}

// HandleComplete handles POST /api/documents/{id}/resolution/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "documents.complete"
	docID, err := shared.PathID(r, op, "id")
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	var req inputval.CompleteRequest
	if r.ContentLength != 0 {
		if err := inputval.Decode(op, r, &req); err != nil {
			uierrors.WriteError(w, r, h.Log, err)
			return
		}
	}
	_, _, actor, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	doc, err := h.Assigner.CompleteResolution(ctx, docID, actor, req.Notes)
	if err != nil {
		uierrors.WriteError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, doc)
}

func optionalID(hex string) *primitive.ObjectID {
	if hex == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil
	}
	return &id
}

func ids(hexes []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		if id, err := primitive.ObjectIDFromHex(h); err == nil {
			out = append(out, id)
		}
	}
	return out
}
